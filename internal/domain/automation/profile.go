package automation

import (
	"context"
	"strings"
	"time"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/guard"
	"github.com/GriffinCanCode/readerfleet/internal/domain/lifecycle"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

// Operation is an administrative profile operation
type Operation string

const (
	OpCreate   Operation = "create"
	OpSwitch   Operation = "switch"
	OpDelete   Operation = "delete"
	OpRecreate Operation = "recreate"
)

// ParseOperation validates an operation name
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case OpCreate, OpSwitch, OpDelete, OpRecreate:
		return op, nil
	}
	return "", fault.New(fault.KindInvalidRequest, "automation.manage_profile",
		"unknown operation %q (want create, switch, delete or recreate)", s)
}

// ProfileStatus is a read-only snapshot of one account
type ProfileStatus struct {
	AccountID      string              `json:"account_id"`
	AuthState      account.AuthState   `json:"auth_state"`
	InstanceStatus lifecycle.Status    `json:"instance_status"`
	LastActivity   time.Time           `json:"last_activity,omitempty"`
	LastView       string              `json:"last_view,omitempty"`
	Profile        *account.Profile    `json:"profile"`
	Instance       *lifecycle.Instance `json:"instance"`
	InFlight       *guard.Token        `json:"in_flight,omitempty"`
}

// ManageResult reports an administrative operation. Status is nil after
// a delete.
type ManageResult struct {
	Operation Operation      `json:"operation"`
	AccountID string         `json:"account_id"`
	Status    *ProfileStatus `json:"status,omitempty"`
	Shared    bool           `json:"shared,omitempty"`
}

// GetProfileStatus returns the account's profile, instance and in-flight
// request. It never creates a profile.
func (s *Service) GetProfileStatus(ctx context.Context, accountID string) (*ProfileStatus, error) {
	st, err := s.lifecycle.Status(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.status(st), nil
}

// ListProfiles returns the status of every known account
func (s *Service) ListProfiles(ctx context.Context) ([]*ProfileStatus, error) {
	states, err := s.lifecycle.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ProfileStatus, 0, len(states))
	for _, st := range states {
		out = append(out, s.status(st))
	}
	return out, nil
}

func (s *Service) status(st *lifecycle.State) *ProfileStatus {
	ps := &ProfileStatus{
		AccountID:      st.Profile.AccountID,
		AuthState:      st.Profile.AuthState,
		InstanceStatus: st.Instance.Status,
		LastActivity:   st.Profile.LastActivity,
		LastView:       st.Profile.LastView,
		Profile:        st.Profile,
		Instance:       st.Instance,
	}
	if tok, ok := s.guard.InFlight(st.Profile.AccountID); ok {
		ps.InFlight = tok
	}
	return ps
}

// ManageProfile runs an administrative operation on the account's lane,
// so it never interleaves with an action. Concurrent identical
// operations share one execution.
func (s *Service) ManageProfile(ctx context.Context, accountID, operation string) (*ManageResult, error) {
	op, err := ParseOperation(operation)
	if err != nil {
		return nil, withAccount(err, accountID)
	}
	if err := account.ValidateID(accountID); err != nil {
		return nil, fault.New(fault.KindInvalidRequest, "automation.manage_profile", "%v", err).WithAccount(accountID)
	}
	accountID = account.NormalizeID(accountID)

	v, shared, err := s.guard.Do(ctx, accountID, "manage:"+string(op), "manage_"+string(op), func(ctx context.Context) (interface{}, error) {
		return s.manage(ctx, accountID, op)
	})
	if op == OpDelete {
		s.guard.Drop(accountID)
	}
	if err != nil {
		return nil, err
	}

	res := &ManageResult{Operation: op, AccountID: accountID, Shared: shared}
	if st, ok := v.(*lifecycle.State); ok && st != nil {
		res.Status = s.status(st)
	}
	return res, nil
}

func (s *Service) manage(ctx context.Context, accountID string, op Operation) (*lifecycle.State, error) {
	switch op {
	case OpCreate:
		return s.lifecycle.GetOrCreateProfile(ctx, accountID)
	case OpSwitch:
		if _, err := s.lifecycle.Switch(ctx, accountID); err != nil {
			return nil, err
		}
		return s.lifecycle.Status(ctx, accountID)
	case OpRecreate:
		return s.lifecycle.Recreate(ctx, accountID)
	case OpDelete:
		return nil, s.lifecycle.Delete(ctx, accountID)
	}
	return nil, fault.New(fault.KindInvalidRequest, "automation.manage_profile", "unknown operation %q", op)
}

func withAccount(err error, accountID string) error {
	if e, ok := fault.As(err); ok && e.AccountID == "" {
		e.AccountID = accountID
	}
	return err
}
