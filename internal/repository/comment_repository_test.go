package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aimd54/judge-helpdesk-bot/internal/models"
)

func TestCommentRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	createTestUser(t, db, 100, "alice")
	ticket := createTestTicket(t, db, 100, time.Now())
	other := createTestTicket(t, db, 100, time.Now())

	texts := []string{"first", "second", "third"}
	for _, text := range texts {
		if err := repo.Create(ctx, &models.Comment{TicketID: ticket.ID, JudgeID: 100, Text: text}); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}
	if err := repo.Create(ctx, &models.Comment{TicketID: other.ID, JudgeID: 100, Text: "elsewhere"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	comments, err := repo.ListByTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("ListByTicket() failed: %v", err)
	}
	if len(comments) != len(texts) {
		t.Fatalf("Expected %d comments, got %d", len(texts), len(comments))
	}
	for i, c := range comments {
		if c.Text != texts[i] {
			t.Errorf("Expected comment %d to be %q, got %q", i, texts[i], c.Text)
		}
	}

	count, err := repo.CountByTicket(ctx, other.ID)
	if err != nil {
		t.Fatalf("CountByTicket() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 comment, got %d", count)
	}
}

func TestCommentRepository_RejectsUnknownTicket(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db)

	err := repo.Create(context.Background(), &models.Comment{TicketID: 999, JudgeID: 1, Text: "orphan"})
	if err == nil {
		t.Error("Expected foreign key violation for unknown ticket")
	}
}

func TestCommentRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	createTestUser(t, db, 100, "alice")
	ticket := createTestTicket(t, db, 100, time.Now())

	comment := &models.Comment{TicketID: ticket.ID, JudgeID: 100, Text: "looking into it"}
	if err := repo.Create(ctx, comment); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got, err := repo.GetByID(ctx, comment.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Text != "looking into it" || got.TicketID != ticket.ID {
		t.Errorf("Unexpected comment: %+v", got)
	}

	if _, err := repo.GetByID(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
