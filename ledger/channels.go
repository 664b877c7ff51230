package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/channel-ledger/auth"
)

// =============================================================================
// CHANNEL SERVICE - channel lifecycle; never touches Balance directly
// =============================================================================

// ChannelService owns channel creation, metadata edits and deactivation.
// Balance changes go through Engine; initial funding is written here in the
// same transaction as the channel row.
type ChannelService struct {
	engine *Engine
}

func NewChannelService(engine *Engine) *ChannelService {
	return &ChannelService{engine: engine}
}

type CreateChannelInput struct {
	OwnerID        OwnerID
	Name           string
	Type           ChannelType
	Description    string
	InitialBalance decimal.Decimal
}

// ChannelPatch lists the only fields a caller may edit. Nil means unchanged.
type ChannelPatch struct {
	Name        *string
	Type        *ChannelType
	Description *string
}

type ListOptions struct {
	IncludeInactive bool
}

// CreateChannel creates a channel and, when InitialBalance > 0, its
// income/initial entry (0 -> InitialBalance) as one atomic unit.
func (s *ChannelService) CreateChannel(ctx context.Context, in CreateChannelInput) (Receipt, error) {
	e := s.engine
	in.Name = strings.TrimSpace(in.Name)

	var err error
	switch {
	case strings.TrimSpace(string(in.OwnerID)) == "":
		err = &ValidationError{Field: "owner_id", Message: "is required"}
	case in.Name == "":
		err = &ValidationError{Field: "name", Message: "is required"}
	case !in.Type.IsValid():
		err = &ValidationError{Field: "type", Message: "must be one of cash, bank, digital"}
	case in.InitialBalance.IsNegative():
		err = &ValidationError{Field: "initial_balance", Message: "must not be negative"}
	}
	if err != nil {
		return e.rejectEarly(ctx, "create_channel", "", err)
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	at := e.now().UTC()
	ch := Channel{
		ID:          ChannelID(e.newID()),
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Type:        in.Type,
		Description: in.Description,
		Balance:     in.InitialBalance,
		IsActive:    true,
		Version:     1,
		CreatedAt:   at,
		UpdatedAt:   at,
	}

	var entry *Entry
	if in.InitialBalance.IsPositive() {
		entry = &Entry{
			ID:              EntryID(e.newID()),
			ChannelID:       ch.ID,
			OwnerID:         ch.OwnerID,
			Sequence:        ch.Version,
			Type:            EntryIncome,
			Amount:          in.InitialBalance,
			PreviousBalance: decimal.Zero,
			NewBalance:      in.InitialBalance,
			Description:     "Initial balance",
			ReferenceType:   RefInitial,
			CreatedAt:       at,
		}
	}

	start := e.now()
	err = e.write(ctx, ch.ID, func(ctx context.Context, st Store) error {
		if err := st.InsertChannel(ctx, ch); err != nil {
			return err
		}
		if entry != nil {
			entry.CreatedBy = auth.ActorFrom(ctx).ID
			return st.AppendEntry(ctx, *entry)
		}
		return nil
	})
	receipt := Receipt{Channel: ch, Entry: entry}
	if err != nil {
		receipt = Receipt{}
	}
	ctx = e.logger.WithFields(ctx, map[string]any{"op": "create_channel", "channel_id": string(ch.ID)})
	e.finish(ctx, "create_channel", 1, start, receipt, err)
	return receipt, err
}

// GetChannel returns an active channel. Deactivated channels are not found.
// The cached balance is checked against the log and repaired if it drifted.
func (s *ChannelService) GetChannel(ctx context.Context, id ChannelID) (Channel, error) {
	ch, err := s.engine.store.GetChannel(ctx, id)
	if err != nil {
		return Channel{}, err
	}
	if !ch.IsActive {
		return Channel{}, channelNotFound(id)
	}
	return s.engine.verifiedChannel(ctx, ch)
}

// Lookup returns a channel whether active or not, without repair.
func (s *ChannelService) Lookup(ctx context.Context, id ChannelID) (Channel, error) {
	return s.engine.store.GetChannel(ctx, id)
}

// ListChannels returns the owner's channels ordered by name, active only by default.
func (s *ChannelService) ListChannels(ctx context.Context, ownerID OwnerID, opts ListOptions) ([]Channel, error) {
	all, err := s.engine.store.ListChannels(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(all))
	for _, ch := range all {
		if ch.IsActive || opts.IncludeInactive {
			out = append(out, ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateChannel edits name, type and description. Balance is untouched.
func (s *ChannelService) UpdateChannel(ctx context.Context, id ChannelID, patch ChannelPatch) (Channel, error) {
	e := s.engine
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		_, err := e.rejectEarly(ctx, "update_channel", id, &ValidationError{Field: "name", Message: "must not be empty"})
		return Channel{}, err
	}
	if patch.Type != nil && !patch.Type.IsValid() {
		_, err := e.rejectEarly(ctx, "update_channel", id, &ValidationError{Field: "type", Message: "must be one of cash, bank, digital"})
		return Channel{}, err
	}

	receipt, err := e.runWithRetry(ctx, "update_channel", id, func(ctx context.Context, _ int) (Receipt, error) {
		ch, err := e.activeChannel(ctx, id)
		if err != nil {
			return Receipt{}, err
		}
		next := ch
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Type != nil {
			next.Type = *patch.Type
		}
		if patch.Description != nil {
			next.Description = *patch.Description
		}
		return e.updateChannel(ctx, ch, next)
	})
	return receipt.Channel, err
}

// Deactivate soft-deletes a channel. Only a zero balance may be deactivated.
func (s *ChannelService) Deactivate(ctx context.Context, id ChannelID) (Channel, error) {
	e := s.engine
	receipt, err := e.runWithRetry(ctx, "deactivate", id, func(ctx context.Context, _ int) (Receipt, error) {
		ch, err := e.activeChannel(ctx, id)
		if err != nil {
			return Receipt{}, err
		}
		if !ch.Balance.IsZero() {
			return Receipt{}, &ConflictError{ChannelID: id, Reason: "balance must be zero to deactivate (is " + ch.Balance.String() + ")"}
		}
		next := ch
		next.IsActive = false
		return e.updateChannel(ctx, ch, next)
	})
	return receipt.Channel, err
}

// updateChannel writes a metadata-only change by compare-and-set.
func (e *Engine) updateChannel(ctx context.Context, ch, next Channel) (Receipt, error) {
	next.Balance = ch.Balance
	next.Version = ch.Version + 1
	next.UpdatedAt = e.now().UTC()
	if next.UpdatedAt.Before(ch.UpdatedAt) {
		next.UpdatedAt = ch.UpdatedAt
	}
	err := e.write(ctx, ch.ID, func(ctx context.Context, st Store) error {
		return st.UpdateChannel(ctx, next, ch.Version)
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Channel: next}, nil
}
