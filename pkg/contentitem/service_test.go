package contentitem

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestApplyOpRequiresContentTypeIDForCreate(t *testing.T) {
	s := &Service{}
	_, err := s.applyOp(context.Background(), uuid.New(), uuid.New(), "", BatchOp{Op: "create"}, false)
	if err == nil {
		t.Fatal("expected an error when content_type_id is missing on a create op")
	}
}

func TestApplyOpRequiresIDForUpdate(t *testing.T) {
	s := &Service{}
	_, err := s.applyOp(context.Background(), uuid.New(), uuid.New(), "", BatchOp{Op: "update"}, false)
	if err == nil {
		t.Fatal("expected an error when id is missing on an update op")
	}
}

func TestApplyOpRequiresIDForDelete(t *testing.T) {
	s := &Service{}
	_, err := s.applyOp(context.Background(), uuid.New(), uuid.New(), "", BatchOp{Op: "delete"}, false)
	if err == nil {
		t.Fatal("expected an error when id is missing on a delete op")
	}
}

func TestApplyOpRejectsUnknownOp(t *testing.T) {
	s := &Service{}
	_, err := s.applyOp(context.Background(), uuid.New(), uuid.New(), "", BatchOp{Op: "noop"}, false)
	if err == nil {
		t.Fatal("expected an error for an unrecognized batch op")
	}
}

func TestSchemaValidationErrorMessage(t *testing.T) {
	err := &SchemaValidationError{}
	if err.Error() == "" {
		t.Error("expected a non-empty message even with no failures")
	}
}

func TestErrPaymentRequiredMessage(t *testing.T) {
	err := &ErrPaymentRequired{}
	if err.Error() == "" {
		t.Error("expected a non-empty message")
	}
}
