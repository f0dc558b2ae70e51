package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nbalepur/fact-repetition/pkg/fact"
)

// StorageTestSuite defines a test suite that can be run against any Storage implementation.
type StorageTestSuite struct {
	NewStorage func(t *testing.T) Storage
}

// RunAllTests runs all storage tests against the provided storage implementation.
func (s *StorageTestSuite) RunAllTests(t *testing.T) {
	t.Run("UserRoundTrip", s.TestUserRoundTrip)
	t.Run("UserNotFound", s.TestUserNotFound)
	t.Run("UserIsolation", s.TestUserIsolation)
	t.Run("FactRoundTrip", s.TestFactRoundTrip)
	t.Run("DecisionWriteOnce", s.TestDecisionWriteOnce)
	t.Run("ApplyUpdateBatch", s.TestApplyUpdateBatch)
	t.Run("ApplyUpdateConsumedDecision", s.TestApplyUpdateConsumedDecision)
	t.Run("ListRecordsFilter", s.TestListRecordsFilter)
	t.Run("ListRecordsPagination", s.TestListRecordsPagination)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
}

func testDate(day int) time.Time {
	return time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC)
}

// TestUserRoundTrip tests saving and retrieving a user with full review state.
func (s *StorageTestSuite) TestUserRoundTrip(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	u := fact.NewUser("u-1")
	u.LeitnerBox["f-1"] = 3
	u.LeitnerDue["f-1"] = testDate(10)
	u.SM2EFactor["f-1"] = 2.3
	u.SM2Interval["f-1"] = 6
	u.SM2Repetition["f-1"] = 2
	u.SM2Due["f-1"] = testDate(12)
	u.RecordStudy("f-1", testDate(5), true)
	u.Results = append(u.Results, true)

	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	retrieved, err := store.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}

	if retrieved.ID != u.ID {
		t.Errorf("expected ID %s, got %s", u.ID, retrieved.ID)
	}
	if retrieved.LeitnerBox["f-1"] != 3 {
		t.Errorf("expected leitner box 3, got %d", retrieved.LeitnerBox["f-1"])
	}
	if retrieved.SM2EFactor["f-1"] != 2.3 {
		t.Errorf("expected efactor 2.3, got %v", retrieved.SM2EFactor["f-1"])
	}
	if !retrieved.SM2Due["f-1"].Equal(testDate(12)) {
		t.Errorf("expected sm2 due %v, got %v", testDate(12), retrieved.SM2Due["f-1"])
	}
	if len(retrieved.Results) != 1 || !retrieved.Results[0] {
		t.Errorf("expected one correct result, got %v", retrieved.Results)
	}
}

// TestUserNotFound tests NotFoundError for users.
func (s *StorageTestSuite) TestUserNotFound(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	_, err := store.GetUser(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing user")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("expected NotFoundError, got %T", err)
	}
}

// TestUserIsolation tests that mutating a retrieved user does not leak into storage.
func (s *StorageTestSuite) TestUserIsolation(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	u := fact.NewUser("u-iso")
	u.LeitnerBox["f-1"] = 2
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	first, err := store.GetUser(ctx, "u-iso")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	first.LeitnerBox["f-1"] = 9

	second, err := store.GetUser(ctx, "u-iso")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if second.LeitnerBox["f-1"] != 2 {
		t.Errorf("stored user mutated through retained pointer: box %d", second.LeitnerBox["f-1"])
	}
}

// TestFactRoundTrip tests saving and retrieving a fact.
func (s *StorageTestSuite) TestFactRoundTrip(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	f := &fact.Fact{
		ID:               "f-1",
		Text:             "capital of France",
		Answer:           "Paris",
		Category:         "geography",
		DeckID:           "deck-1",
		ContentEmbedding: []float32{0.1, 0.2, 0.3},
		Results:          []bool{true, false},
	}

	if err := store.SaveFact(ctx, f); err != nil {
		t.Fatalf("SaveFact failed: %v", err)
	}

	retrieved, err := store.GetFact(ctx, "f-1")
	if err != nil {
		t.Fatalf("GetFact failed: %v", err)
	}
	if retrieved.Answer != "Paris" {
		t.Errorf("expected answer Paris, got %s", retrieved.Answer)
	}
	if len(retrieved.ContentEmbedding) != 3 {
		t.Errorf("expected embedding of length 3, got %d", len(retrieved.ContentEmbedding))
	}
	if len(retrieved.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(retrieved.Results))
	}
}

// TestDecisionWriteOnce tests that a decision id cannot be saved twice.
func (s *StorageTestSuite) TestDecisionWriteOnce(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	d := &fact.Decision{
		ID:     "d-1",
		UserID: "u-1",
		Date:   testDate(1),
		Order:  []string{"f-2", "f-1"},
		Scores: map[string]fact.FactorScores{
			"f-1": {Leitner: 1, Total: 1},
			"f-2": {Leitner: 1, Recall: -0.1, Total: 0.9},
		},
	}

	if err := store.SaveDecision(ctx, d); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}
	if err := store.SaveDecision(ctx, d); err == nil {
		t.Fatal("expected error on duplicate decision id")
	} else if _, ok := err.(*DuplicateKeyError); !ok {
		t.Errorf("expected DuplicateKeyError, got %T", err)
	}

	retrieved, err := store.GetDecision(ctx, "d-1")
	if err != nil {
		t.Fatalf("GetDecision failed: %v", err)
	}
	if len(retrieved.Order) != 2 || retrieved.Order[0] != "f-2" {
		t.Errorf("unexpected order %v", retrieved.Order)
	}
	if retrieved.ConsumedAt != nil {
		t.Error("fresh decision should not be consumed")
	}
}

// TestApplyUpdateBatch tests that a batch commit persists every entity.
func (s *StorageTestSuite) TestApplyUpdateBatch(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	u := fact.NewUser("u-1")
	f := &fact.Fact{ID: "f-1", Answer: "Paris"}
	d := &fact.Decision{ID: "d-1", UserID: "u-1", Date: testDate(1), Order: []string{"f-1"}}
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	if err := store.SaveFact(ctx, f); err != nil {
		t.Fatalf("SaveFact failed: %v", err)
	}
	if err := store.SaveDecision(ctx, d); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	snapshot := u.Clone()
	updated := u.Clone()
	updated.RecordStudy("f-1", testDate(2), true)
	updated.LeitnerBox["f-1"] = 1
	f.Results = append(f.Results, true)
	consumed := testDate(2)
	d.ConsumedAt = &consumed

	batch := &UpdateBatch{
		User:     updated,
		Facts:    []*fact.Fact{f},
		Decision: d,
		Records: []*fact.Record{{
			ID:         "r-1",
			DecisionID: "d-1",
			UserID:     "u-1",
			FactID:     "f-1",
			Response:   true,
			Date:       testDate(2),
		}},
		UserSnapshots: []*fact.UserSnapshot{{
			RecordID: "r-1",
			UserID:   "u-1",
			Date:     testDate(2),
			State:    snapshot,
		}},
		FactSnapshots: []*fact.FactSnapshot{{
			RecordID: "r-1",
			FactID:   "f-1",
			Date:     testDate(2),
			Results:  []bool{true},
		}},
	}

	if err := store.ApplyUpdate(ctx, batch); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}

	gotUser, err := store.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if gotUser.LeitnerBox["f-1"] != 1 {
		t.Errorf("user update not persisted: box %d", gotUser.LeitnerBox["f-1"])
	}

	gotDecision, err := store.GetDecision(ctx, "d-1")
	if err != nil {
		t.Fatalf("GetDecision failed: %v", err)
	}
	if gotDecision.ConsumedAt == nil {
		t.Error("decision consumption marker not persisted")
	}

	gotRecord, err := store.GetRecord(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if gotRecord.DecisionID != "d-1" {
		t.Errorf("expected decision id d-1, got %s", gotRecord.DecisionID)
	}

	gotSnap, err := store.GetUserSnapshot(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetUserSnapshot failed: %v", err)
	}
	if gotSnap.State == nil || len(gotSnap.State.LeitnerBox) != 0 {
		t.Error("user snapshot must hold the pre-update state")
	}

	gotFactSnap, err := store.GetFactSnapshot(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetFactSnapshot failed: %v", err)
	}
	if len(gotFactSnap.Results) != 1 {
		t.Errorf("expected fact snapshot results of length 1, got %d", len(gotFactSnap.Results))
	}
}

// TestApplyUpdateConsumedDecision tests that a batch against an
// already-consumed decision is rejected instead of committed twice.
func (s *StorageTestSuite) TestApplyUpdateConsumedDecision(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	u := fact.NewUser("u-1")
	d := &fact.Decision{ID: "d-1", UserID: "u-1", Date: testDate(1), Order: []string{"f-1"}}
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	if err := store.SaveDecision(ctx, d); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	consumed := testDate(2)
	d.ConsumedAt = &consumed
	first := u.Clone()
	first.RecordStudy("f-1", testDate(2), true)
	first.Results = append(first.Results, true)
	if err := store.ApplyUpdate(ctx, &UpdateBatch{User: first, Decision: d}); err != nil {
		t.Fatalf("first ApplyUpdate failed: %v", err)
	}

	second := first.Clone()
	second.RecordStudy("f-1", testDate(2), true)
	second.Results = append(second.Results, true)
	err := store.ApplyUpdate(ctx, &UpdateBatch{User: second, Decision: d})
	if err == nil {
		t.Fatal("expected error applying a batch for a consumed decision")
	}
	var dup *DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}

	gotUser, err := store.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if len(gotUser.Results) != 1 {
		t.Errorf("expected exactly one recorded result, got %d", len(gotUser.Results))
	}
}

// TestListRecordsFilter tests record listing with user and date filters.
func (s *StorageTestSuite) TestListRecordsFilter(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	records := []*fact.Record{
		{ID: "r-1", UserID: "u-1", FactID: "f-1", Date: testDate(1)},
		{ID: "r-2", UserID: "u-1", FactID: "f-2", Date: testDate(3), IsNewFact: true},
		{ID: "r-3", UserID: "u-2", FactID: "f-1", Date: testDate(2)},
	}
	if err := store.ApplyUpdate(ctx, &UpdateBatch{Records: records}); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}

	got, err := store.ListRecords(ctx, &RecordFilter{UserID: "u-1"})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records for u-1, got %d", len(got))
	}
	if got[0].ID != "r-1" || got[1].ID != "r-2" {
		t.Errorf("records not ordered by date: %s, %s", got[0].ID, got[1].ID)
	}

	from := testDate(2)
	got, err = store.ListRecords(ctx, &RecordFilter{UserID: "u-1", From: &from})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r-2" {
		t.Errorf("date filter failed: %v", got)
	}

	got, err = store.ListRecords(ctx, &RecordFilter{NewOnly: true})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r-2" {
		t.Errorf("new-only filter failed: %v", got)
	}
}

// TestListRecordsPagination tests record listing with limit and offset.
func (s *StorageTestSuite) TestListRecordsPagination(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	var records []*fact.Record
	for i := 1; i <= 7; i++ {
		records = append(records, &fact.Record{
			ID:     string(rune('a' + i)),
			UserID: "u-1",
			Date:   testDate(i),
		})
	}
	if err := store.ApplyUpdate(ctx, &UpdateBatch{Records: records}); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}

	got, err := store.ListRecords(ctx, &RecordFilter{UserID: "u-1", Limit: 3})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 records, got %d", len(got))
	}

	got, err = store.ListRecords(ctx, &RecordFilter{UserID: "u-1", Limit: 3, Offset: 6})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 record on last page, got %d", len(got))
	}
}

// TestConcurrentAccess tests concurrent read/write operations.
func (s *StorageTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			u := fact.NewUser(string(rune('a' + idx)))
			if err := store.SaveUser(ctx, u); err != nil {
				errs <- err
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ListUsers(ctx); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 10 {
		t.Errorf("expected 10 users, got %d", len(users))
	}
}
