package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"LinkPilot/internal/domain"
	"LinkPilot/internal/ports"
)

const (
	commandApprove = "APPROVE"
	commandReject  = "REJECT"
)

// Interpreter turns inbound WhatsApp replies into approval decisions. Every
// message gets exactly one reply; the confirmation for a decision is sent
// only after the state change is durably recorded.
type Interpreter struct {
	drafts    ports.DraftRepository
	messenger ports.Messenger

	publishDelay time.Duration

	log *slog.Logger
	now func() time.Time
}

// NewInterpreter wires the approval command handler. publishDelay is how far
// in the future an approved draft is scheduled.
func NewInterpreter(drafts ports.DraftRepository, messenger ports.Messenger, publishDelay time.Duration, log *slog.Logger) *Interpreter {
	return &Interpreter{
		drafts:       drafts,
		messenger:    messenger,
		publishDelay: publishDelay,
		log:          log,
		now:          time.Now,
	}
}

// HandleMessage parses one inbound message from sender and replies to it.
func (i *Interpreter) HandleMessage(ctx context.Context, sender, body string) error {
	reply, err := i.interpret(ctx, body)
	if err != nil {
		return err
	}
	if _, err := i.messenger.SendMessage(ctx, sender, reply, ""); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (i *Interpreter) interpret(ctx context.Context, body string) (string, error) {
	tokens := strings.Fields(body)
	if len(tokens) != 2 {
		return "Sorry, I did not understand that. Reply with 'APPROVE <id>' or 'REJECT <id>'.", nil
	}

	command := strings.ToUpper(tokens[0])
	if command != commandApprove && command != commandReject {
		return fmt.Sprintf("Unknown command %q. Reply with 'APPROVE <id>' or 'REJECT <id>'.", tokens[0]), nil
	}

	draftID := strings.ToLower(tokens[1])
	if uuid.Validate(draftID) != nil {
		return fmt.Sprintf("%q does not look like a draft id. Please copy the id from the review message.", tokens[1]), nil
	}

	draft, err := i.drafts.FindByID(ctx, draftID)
	if errors.Is(err, ports.ErrNotFound) {
		return fmt.Sprintf("No draft found with id %s.", draftID), nil
	}
	if err != nil {
		return "", fmt.Errorf("load draft: %w", err)
	}

	if draft.Status != domain.StatusPendingApproval {
		return fmt.Sprintf("Draft %s is already %s.", draftID, draft.Status), nil
	}

	switch command {
	case commandApprove:
		publishAt := i.now().Add(i.publishDelay)
		updated, err := i.drafts.Resolve(ctx, draftID, domain.StatusApproved, &publishAt, i.now())
		if err != nil {
			return "", fmt.Errorf("approve draft: %w", err)
		}
		if !updated {
			return fmt.Sprintf("Draft %s was already decided.", draftID), nil
		}
		i.log.Info("draft approved", "draft", draftID, "publish_at", publishAt)
		return fmt.Sprintf("Approved. Draft %s is scheduled to publish at %s.",
			draftID, publishAt.Format("15:04 MST")), nil

	default:
		updated, err := i.drafts.Resolve(ctx, draftID, domain.StatusRejected, nil, i.now())
		if err != nil {
			return "", fmt.Errorf("reject draft: %w", err)
		}
		if !updated {
			return fmt.Sprintf("Draft %s was already decided.", draftID), nil
		}
		i.log.Info("draft rejected", "draft", draftID)
		return fmt.Sprintf("Rejected. Draft %s will not be published.", draftID), nil
	}
}
