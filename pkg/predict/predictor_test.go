package predict

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFeaturesFor(t *testing.T) {
	f := FeaturesFor(
		[]bool{true, true, false, true},
		[]bool{true, false},
		3, 1,
	)
	if f.UserAccuracy != 0.75 {
		t.Errorf("UserAccuracy = %v, want 0.75", f.UserAccuracy)
	}
	if f.FactAccuracy != 0.5 {
		t.Errorf("FactAccuracy = %v, want 0.5", f.FactAccuracy)
	}
	if f.CountCorrect != 3 || f.CountWrong != 1 {
		t.Errorf("counters = %d/%d, want 3/1", f.CountCorrect, f.CountWrong)
	}
}

func TestFeaturesForEmptyHistory(t *testing.T) {
	f := FeaturesFor(nil, nil, 0, 0)
	if f.UserAccuracy != 0 || f.FactAccuracy != 0 {
		t.Fatalf("empty history should produce zero accuracy: %+v", f)
	}
}

func TestEmpiricalInRange(t *testing.T) {
	e := NewEmpirical()
	cases := []Features{
		{},
		{UserAccuracy: 1, FactAccuracy: 1, CountCorrect: 20},
		{UserAccuracy: 0, FactAccuracy: 0, CountWrong: 20},
		{UserAccuracy: 0.5, FactAccuracy: 0.5, CountCorrect: 2, CountWrong: 2},
	}
	for _, f := range cases {
		p, err := e.Predict(context.Background(), f)
		if err != nil {
			t.Fatalf("Predict(%+v) error = %v", f, err)
		}
		if p < 0 || p > 1 {
			t.Fatalf("Predict(%+v) = %v, outside [0,1]", f, p)
		}
	}
}

func TestEmpiricalDeterministic(t *testing.T) {
	e := NewEmpirical()
	f := Features{UserAccuracy: 0.8, FactAccuracy: 0.6, CountCorrect: 3, CountWrong: 1}
	a, _ := e.Predict(context.Background(), f)
	b, _ := e.Predict(context.Background(), f)
	if a != b {
		t.Fatalf("Predict not deterministic: %v vs %v", a, b)
	}
}

func TestEmpiricalOrdersByHistory(t *testing.T) {
	e := NewEmpirical()
	strong, _ := e.Predict(context.Background(), Features{UserAccuracy: 0.9, FactAccuracy: 0.8, CountCorrect: 5})
	weak, _ := e.Predict(context.Background(), Features{UserAccuracy: 0.3, FactAccuracy: 0.2, CountWrong: 5})
	if strong <= weak {
		t.Fatalf("strong history (%v) should predict higher recall than weak (%v)", strong, weak)
	}
}

func TestHTTPPredictor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"probability": 0.73}`))
	}))
	defer srv.Close()

	p := NewHTTPPredictor(HTTPConfig{URL: srv.URL, Timeout: time.Second})
	got, err := p.Predict(context.Background(), Features{UserAccuracy: 0.5})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got != 0.73 {
		t.Fatalf("Predict() = %v, want 0.73", got)
	}
}

func TestHTTPPredictorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPPredictor(HTTPConfig{URL: srv.URL, Timeout: time.Second})
	if _, err := p.Predict(context.Background(), Features{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestHTTPPredictorOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"probability": 1.5}`))
	}))
	defer srv.Close()

	p := NewHTTPPredictor(HTTPConfig{URL: srv.URL, Timeout: time.Second})
	if _, err := p.Predict(context.Background(), Features{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

type slowPredictor struct{ delay time.Duration }

func (s *slowPredictor) Predict(ctx context.Context, _ Features) (float64, error) {
	select {
	case <-time.After(s.delay):
		return 0.5, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestWithTimeout(t *testing.T) {
	fast := WithTimeout(&slowPredictor{delay: time.Millisecond}, time.Second)
	if _, err := fast.Predict(context.Background(), Features{}); err != nil {
		t.Fatalf("fast predictor error = %v", err)
	}

	slow := WithTimeout(&slowPredictor{delay: time.Second}, 10*time.Millisecond)
	if _, err := slow.Predict(context.Background(), Features{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}
