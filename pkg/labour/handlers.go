package labour

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kieran-gray/fern-labour-sub001/pkg/authz"
	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// Handlers adapts each labour command to the eventsourcing.CommandHandler
// interface: load (or create), authorize, validate, apply, persist.
type Handlers struct {
	repo eventsourcing.Repository[*Labour]
}

func NewHandlers(repo eventsourcing.Repository[*Labour]) *Handlers {
	return &Handlers{repo: repo}
}

// Register wires every labour command into bus.
func (h *Handlers) Register(bus eventsourcing.CommandBus) {
	bus.Register(CmdPlanLabour, eventsourcing.CommandHandlerFunc(h.handlePlanLabour))
	bus.Register(CmdUpdateLabourPlan, eventsourcing.CommandHandlerFunc(h.handleUpdateLabourPlan))
	bus.Register(CmdBeginLabour, eventsourcing.CommandHandlerFunc(h.handleBeginLabour))
	bus.Register(CmdAdvanceLabourPhase, eventsourcing.CommandHandlerFunc(h.handleAdvanceLabourPhase))
	bus.Register(CmdCompleteLabour, eventsourcing.CommandHandlerFunc(h.handleCompleteLabour))
	bus.Register(CmdDeleteLabour, eventsourcing.CommandHandlerFunc(h.handleDeleteLabour))
	bus.Register(CmdSendLabourInvite, eventsourcing.CommandHandlerFunc(h.handleSendLabourInvite))
	bus.Register(CmdSetSubscriptionToken, eventsourcing.CommandHandlerFunc(h.handleSetSubscriptionToken))
	bus.Register(CmdAddContraction, eventsourcing.CommandHandlerFunc(h.handleAddContraction))
	bus.Register(CmdUpdateContraction, eventsourcing.CommandHandlerFunc(h.handleUpdateContraction))
	bus.Register(CmdDeleteContraction, eventsourcing.CommandHandlerFunc(h.handleDeleteContraction))
	bus.Register(CmdPostLabourUpdate, eventsourcing.CommandHandlerFunc(h.handlePostLabourUpdate))
	bus.Register(CmdPostApplicationLabourUpdate, eventsourcing.CommandHandlerFunc(h.handlePostApplicationLabourUpdate))
	bus.Register(CmdUpdateLabourUpdateMessage, eventsourcing.CommandHandlerFunc(h.handleUpdateLabourUpdateMessage))
	bus.Register(CmdUpdateLabourUpdateType, eventsourcing.CommandHandlerFunc(h.handleUpdateLabourUpdateType))
	bus.Register(CmdDeleteLabourUpdate, eventsourcing.CommandHandlerFunc(h.handleDeleteLabourUpdate))
	bus.Register(CmdRequestAccess, eventsourcing.CommandHandlerFunc(h.handleRequestAccess))
	bus.Register(CmdApproveSubscriber, eventsourcing.CommandHandlerFunc(h.handleApproveSubscriber))
	bus.Register(CmdUnsubscribe, eventsourcing.CommandHandlerFunc(h.handleUnsubscribe))
	bus.Register(CmdRemoveSubscriber, eventsourcing.CommandHandlerFunc(h.handleRemoveSubscriber))
	bus.Register(CmdBlockSubscriber, eventsourcing.CommandHandlerFunc(h.handleBlockSubscriber))
	bus.Register(CmdUnblockSubscriber, eventsourcing.CommandHandlerFunc(h.handleUnblockSubscriber))
	bus.Register(CmdUpdateSubscriberRole, eventsourcing.CommandHandlerFunc(h.handleUpdateSubscriberRole))
	bus.Register(CmdUpdateAccessLevel, eventsourcing.CommandHandlerFunc(h.handleUpdateAccessLevel))
	bus.Register(CmdUpdateNotificationMethods, eventsourcing.CommandHandlerFunc(h.handleUpdateNotificationMethods))
}

func notFound(id string) error {
	return &eventsourcing.AppError{
		Code:     "LABOUR_NOT_FOUND",
		Message:  fmt.Sprintf("labour %s not found", id),
		Solution: "Check the labour ID and try again",
		Details:  make(map[string]string),
	}
}

func invalid(code, message string) error {
	return &eventsourcing.AppError{Code: code, Message: message, Details: make(map[string]string)}
}

func (h *Handlers) load(id string) (*Labour, error) {
	agg, err := h.repo.Load(id)
	if err != nil {
		return nil, notFound(id)
	}
	if agg.Deleted {
		return nil, notFound(id)
	}
	return agg, nil
}

// authorize resolves the principal against agg and checks the required
// capability, per spec.md §4.3.
func authorize(agg *Labour, principalID string, action authz.Action) error {
	principal := authz.ResolvePrincipal(principalID, agg)
	return authz.Authorize(principal, action)
}

func (h *Handlers) save(agg *Labour, meta eventsourcing.CommandMetadata) ([]*eventsourcing.Event, error) {
	result, err := h.repo.SaveWithCommand(agg, meta.CommandID)
	if err != nil {
		return nil, invalid("SAVE_FAILED", err.Error())
	}
	return result.Events, nil
}

func (h *Handlers) handlePlanLabour(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*PlanLabour)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	if cmd.MotherID == "" {
		return nil, invalid("INVALID_MOTHER_ID", "mother ID is required")
	}
	if cmd.DueDate.IsZero() {
		return nil, invalid("INVALID_DUE_DATE", "due date is required")
	}
	if r := ValidateLabourName(cmd.LabourName); !r.IsValid {
		return nil, r.ToAppError()
	}
	cmd.LabourName = NormalizeText(cmd.LabourName)

	agg := NewLabour(cmd.AggregateID())
	agg.SetCommandID(env.Metadata.CommandID)
	meta := eventsourcing.EventMetadata{CausationID: env.Metadata.CommandID, CorrelationID: env.Metadata.CorrelationID, PrincipalID: env.Metadata.PrincipalID}

	event := LabourPlanned{
		LabourID: cmd.AggregateID(), MotherID: cmd.MotherID,
		FirstLabour: cmd.FirstLabour, DueDate: cmd.DueDate, LabourName: cmd.LabourName,
	}
	if err := agg.ApplyChangeWithConstraints(event, EventLabourPlanned, meta, []eventsourcing.UniqueConstraint{
		{IndexName: "labour_by_mother", Value: cmd.MotherID, Operation: eventsourcing.ConstraintClaim},
	}); err != nil {
		return nil, err
	}
	if err := agg.ApplyEvent(&eventsourcing.Event{EventType: EventLabourPlanned, Data: mustJSON(event)}); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleUpdateLabourPlan(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*UpdateLabourPlan)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	if agg.Phase == PhaseComplete {
		return nil, invalid("LABOUR_COMPLETE", "cannot update the plan of a completed labour")
	}

	agg.SetCommandID(env.Metadata.CommandID)
	meta := eventMeta(env)
	event := LabourPlanUpdated{FirstLabour: cmd.FirstLabour, DueDate: cmd.DueDate, LabourName: cmd.LabourName}
	if err := applyAndRecord(agg, event, EventLabourPlanUpdated, meta); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleBeginLabour(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*BeginLabour)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	if agg.Phase != PhasePlanned {
		return nil, invalid("LABOUR_ALREADY_BEGUN", "labour has already begun")
	}

	agg.SetCommandID(env.Metadata.CommandID)
	begun := LabourBegun{BegunAt: eventsourcing.Now()}
	if err := applyAndRecord(agg, begun, EventLabourBegun, eventMeta(env)); err != nil {
		return nil, err
	}
	phaseChange := LabourPhaseChanged{From: PhasePlanned, To: PhaseEarly, FromTag: PhasePlanned.String(), ToTag: PhaseEarly.String()}
	if err := applyAndRecord(agg, phaseChange, EventLabourPhaseChanged, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleAdvanceLabourPhase(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*AdvanceLabourPhase)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	if agg.Phase == PhasePlanned {
		return nil, invalid("LABOUR_NOT_BEGUN", "labour has not begun yet")
	}
	next, ok := agg.Phase.next()
	if !ok {
		return nil, invalid("LABOUR_AT_FINAL_PHASE", "labour is already at its final pre-completion phase")
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := LabourPhaseChanged{From: agg.Phase, To: next, FromTag: agg.Phase.String(), ToTag: next.String()}
	if err := applyAndRecord(agg, event, EventLabourPhaseChanged, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleCompleteLabour(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*CompleteLabour)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	if agg.Phase == PhaseComplete {
		return nil, invalid("LABOUR_ALREADY_COMPLETE", "labour is already complete")
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := LabourCompleted{CompletedAt: eventsourcing.Now(), Notes: cmd.Notes}
	if err := applyAndRecord(agg, event, EventLabourCompleted, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleDeleteLabour(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*DeleteLabour)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := LabourDeleted{DeletedAt: eventsourcing.Now()}
	if err := agg.ApplyChangeWithConstraints(event, EventLabourDeleted, eventMeta(env), []eventsourcing.UniqueConstraint{
		{IndexName: "labour_by_mother", Value: agg.Mother, Operation: eventsourcing.ConstraintRelease},
	}); err != nil {
		return nil, err
	}
	if err := agg.ApplyEvent(&eventsourcing.Event{EventType: EventLabourDeleted, Data: mustJSON(event)}); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleSendLabourInvite(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*SendLabourInvite)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageOtherSubscription}); err != nil {
		return nil, err
	}
	if r := ValidateInviteEmail(cmd.InviteEmail); !r.IsValid {
		return nil, r.ToAppError()
	}
	cmd.InviteEmail = NormalizeText(cmd.InviteEmail)

	agg.SetCommandID(env.Metadata.CommandID)
	event := LabourInviteSent{InviteEmail: cmd.InviteEmail}
	if err := applyAndRecord(agg, event, EventLabourInviteSent, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

// handleSetSubscriptionToken applies the GenerateSubscriptionToken effect's
// result (spec.md §5); it carries no authorization check since it is only
// ever issued internally by the process manager.
func (h *Handlers) handleSetSubscriptionToken(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*SetSubscriptionToken)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := SubscriptionTokenSet{Token: cmd.Token}
	if err := applyAndRecord(agg, event, EventSubscriptionTokenSet, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleAddContraction(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*AddContraction)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	if agg.Phase == PhasePlanned || agg.Phase == PhaseComplete {
		return nil, invalid("LABOUR_NOT_ACTIVE", "contractions can only be recorded while labour is in progress")
	}
	if cmd.End.Before(cmd.Start) {
		return nil, invalid("INVALID_CONTRACTION_WINDOW", "contraction end must not be before start")
	}
	if r := ValidateContractionIntensity(cmd.Intensity); !r.IsValid {
		return nil, r.ToAppError()
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := ContractionAdded{ContractionID: uuid.NewString(), Start: cmd.Start, End: cmd.End, Intensity: cmd.Intensity}
	if err := applyAndRecord(agg, event, EventContractionAdded, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleUpdateContraction(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*UpdateContraction)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	c := agg.findContraction(cmd.ContractionID)
	if c == nil || c.Deleted {
		return nil, invalid("CONTRACTION_NOT_FOUND", "contraction not found")
	}
	if r := ValidateContractionIntensity(cmd.Intensity); !r.IsValid {
		return nil, r.ToAppError()
	}
	start, end := c.Start, c.End
	if cmd.Start != nil {
		start = *cmd.Start
	}
	if cmd.End != nil {
		end = *cmd.End
	}
	if end.Before(start) {
		return nil, invalid("INVALID_CONTRACTION_WINDOW", "contraction end must not be before start")
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := ContractionUpdated{ContractionID: cmd.ContractionID, Start: cmd.Start, End: cmd.End, Intensity: cmd.Intensity}
	if err := applyAndRecord(agg, event, EventContractionUpdated, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleDeleteContraction(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*DeleteContraction)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	if c := agg.findContraction(cmd.ContractionID); c == nil {
		return nil, invalid("CONTRACTION_NOT_FOUND", "contraction not found")
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := ContractionDeleted{ContractionID: cmd.ContractionID}
	if err := applyAndRecord(agg, event, EventContractionDeleted, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) postUpdate(env *eventsourcing.CommandEnvelope, agg *Labour, updateType LabourUpdateType, message string, applicationGenerated bool) ([]*eventsourcing.Event, error) {
	if r := ValidateUpdateMessage(message); !r.IsValid {
		return nil, r.ToAppError()
	}
	message = NormalizeText(message)
	agg.SetCommandID(env.Metadata.CommandID)
	event := LabourUpdatePosted{
		UpdateID: uuid.NewString(), Type: updateType, Message: message,
		ApplicationGenerated: applicationGenerated, PostedAt: eventsourcing.Now(),
	}
	if err := applyAndRecord(agg, event, EventLabourUpdatePosted, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handlePostLabourUpdate(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*PostLabourUpdate)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	return h.postUpdate(env, agg, cmd.Type, cmd.Message, false)
}

// handlePostApplicationLabourUpdate is issued only by the process manager
// (e.g. a phase-change announcement), so it bypasses the subscriber
// capability check.
func (h *Handlers) handlePostApplicationLabourUpdate(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*PostApplicationLabourUpdate)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	return h.postUpdate(env, agg, cmd.Type, cmd.Message, true)
}

func (h *Handlers) handleUpdateLabourUpdateMessage(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*UpdateLabourUpdateMessage)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	u := agg.findUpdate(cmd.UpdateID)
	if u == nil || u.Deleted {
		return nil, invalid("UPDATE_NOT_FOUND", "labour update not found")
	}
	if r := ValidateUpdateMessage(cmd.Message); !r.IsValid {
		return nil, r.ToAppError()
	}
	cmd.Message = NormalizeText(cmd.Message)

	agg.SetCommandID(env.Metadata.CommandID)
	event := LabourUpdateMessageUpdated{UpdateID: cmd.UpdateID, Message: cmd.Message}
	if err := applyAndRecord(agg, event, EventLabourUpdateMessageUpdated, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleUpdateLabourUpdateType(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*UpdateLabourUpdateType)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	u := agg.findUpdate(cmd.UpdateID)
	if u == nil || u.Deleted {
		return nil, invalid("UPDATE_NOT_FOUND", "labour update not found")
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := LabourUpdateTypeUpdated{UpdateID: cmd.UpdateID, Type: cmd.Type}
	if err := applyAndRecord(agg, event, EventLabourUpdateTypeUpdated, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleDeleteLabourUpdate(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*DeleteLabourUpdate)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{RequiredCapability: authz.CapManageLabour}); err != nil {
		return nil, err
	}
	if u := agg.findUpdate(cmd.UpdateID); u == nil {
		return nil, invalid("UPDATE_NOT_FOUND", "labour update not found")
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := LabourUpdateDeleted{UpdateID: cmd.UpdateID}
	if err := applyAndRecord(agg, event, EventLabourUpdateDeleted, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleRequestAccess(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*RequestAccess)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	agg, err := h.load(cmd.AggregateID())
	if err != nil {
		return nil, err
	}
	// Anyone may request access; authorization gates the mother's approval,
	// not the initial request (spec.md §4.3: Unassociated may RequestAccess).
	for _, s := range agg.SubscriptionsByID {
		if s.SubscriberID == cmd.SubscriberID && s.Status != StatusRemoved && s.Status != StatusUnsubscribed {
			return nil, invalid("ALREADY_SUBSCRIBED", "a request or subscription already exists for this subscriber")
		}
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event := SubscriberRequested{
		SubscriptionID: uuid.NewString(), SubscriberID: cmd.SubscriberID,
		Role: cmd.Role, RequestedAt: eventsourcing.Now(),
	}
	if err := applyAndRecord(agg, event, EventSubscriberRequested, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) subscriberCommand(
	env *eventsourcing.CommandEnvelope,
	subscriptionID string,
	requiredCap authz.Capability,
	requiredStatus []SubscriberStatus,
	mutate func(*Labour) (interface{}, string),
) ([]*eventsourcing.Event, error) {
	agg, err := h.load(env.Command.AggregateID())
	if err != nil {
		return nil, err
	}
	if err := authorize(agg, env.Metadata.PrincipalID, authz.Action{
		RequiredCapability: requiredCap, TargetSubscriptionID: subscriptionID,
	}); err != nil {
		return nil, err
	}
	s := agg.findSubscription(subscriptionID)
	if s == nil {
		return nil, invalid("SUBSCRIPTION_NOT_FOUND", "subscription not found")
	}
	if len(requiredStatus) > 0 {
		ok := false
		for _, st := range requiredStatus {
			if s.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return nil, invalid("INVALID_SUBSCRIPTION_STATE", fmt.Sprintf("subscription is %s", s.Status))
		}
	}

	agg.SetCommandID(env.Metadata.CommandID)
	event, eventType := mutate(agg)
	if err := applyAndRecord(agg, event, eventType, eventMeta(env)); err != nil {
		return nil, err
	}
	return h.save(agg, env.Metadata)
}

func (h *Handlers) handleApproveSubscriber(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*ApproveSubscriber)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	return h.subscriberCommand(env, cmd.SubscriptionID, authz.CapManageOtherSubscription, []SubscriberStatus{StatusRequested},
		func(agg *Labour) (interface{}, string) {
			return SubscriberApproved{SubscriptionID: cmd.SubscriptionID}, EventSubscriberApproved
		})
}

func (h *Handlers) handleUnsubscribe(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*Unsubscribe)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	return h.subscriberCommand(env, cmd.SubscriptionID, authz.CapManageSelfSubscription, []SubscriberStatus{StatusSubscribed},
		func(agg *Labour) (interface{}, string) {
			return SubscriberUnsubscribed{SubscriptionID: cmd.SubscriptionID}, EventSubscriberUnsubscribed
		})
}

func (h *Handlers) handleRemoveSubscriber(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*RemoveSubscriber)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	return h.subscriberCommand(env, cmd.SubscriptionID, authz.CapManageOtherSubscription, nil,
		func(agg *Labour) (interface{}, string) {
			return SubscriberRemoved{SubscriptionID: cmd.SubscriptionID}, EventSubscriberRemoved
		})
}

func (h *Handlers) handleBlockSubscriber(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*BlockSubscriber)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	return h.subscriberCommand(env, cmd.SubscriptionID, authz.CapManageOtherSubscription, nil,
		func(agg *Labour) (interface{}, string) {
			return SubscriberBlocked{SubscriptionID: cmd.SubscriptionID}, EventSubscriberBlocked
		})
}

func (h *Handlers) handleUnblockSubscriber(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*UnblockSubscriber)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	return h.subscriberCommand(env, cmd.SubscriptionID, authz.CapManageOtherSubscription, []SubscriberStatus{StatusBlocked},
		func(agg *Labour) (interface{}, string) {
			return SubscriberUnblocked{SubscriptionID: cmd.SubscriptionID}, EventSubscriberUnblocked
		})
}

func (h *Handlers) handleUpdateSubscriberRole(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*UpdateSubscriberRole)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	return h.subscriberCommand(env, cmd.SubscriptionID, authz.CapManageOtherSubscription, nil,
		func(agg *Labour) (interface{}, string) {
			return SubscriberRoleUpdated{SubscriptionID: cmd.SubscriptionID, Role: cmd.Role}, EventSubscriberRoleUpdated
		})
}

func (h *Handlers) handleUpdateAccessLevel(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*UpdateAccessLevel)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	return h.subscriberCommand(env, cmd.SubscriptionID, authz.CapManageOtherSubscription, nil,
		func(agg *Labour) (interface{}, string) {
			return SubscriberAccessLevelUpdated{SubscriptionID: cmd.SubscriptionID, AccessLevel: cmd.AccessLevel}, EventSubscriberAccessLevelUpdated
		})
}

func (h *Handlers) handleUpdateNotificationMethods(ctx context.Context, env *eventsourcing.CommandEnvelope) ([]*eventsourcing.Event, error) {
	cmd, ok := env.Command.(*UpdateNotificationMethods)
	if !ok {
		return nil, eventsourcing.ErrInvalidCommand
	}
	return h.subscriberCommand(env, cmd.SubscriptionID, authz.CapManageSelfSubscription, []SubscriberStatus{StatusSubscribed},
		func(agg *Labour) (interface{}, string) {
			return SubscriberNotificationMethodsUpdated{SubscriptionID: cmd.SubscriptionID, Methods: cmd.Methods}, EventSubscriberNotificationMethodsUpdated
		})
}

func eventMeta(env *eventsourcing.CommandEnvelope) eventsourcing.EventMetadata {
	return eventsourcing.EventMetadata{
		CausationID:   env.Metadata.CommandID,
		CorrelationID: env.Metadata.CorrelationID,
		PrincipalID:   env.Metadata.PrincipalID,
	}
}

// applyAndRecord records the event onto the aggregate's uncommitted list
// (ApplyChange) and immediately folds it into aggregate state (ApplyEvent),
// so subsequent commands in the same batch see up-to-date state.
func applyAndRecord(agg *Labour, event interface{}, eventType string, meta eventsourcing.EventMetadata) error {
	if err := agg.ApplyChange(event, eventType, meta); err != nil {
		return err
	}
	return agg.ApplyEvent(&eventsourcing.Event{EventType: eventType, Data: mustJSON(event)})
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("labour: marshal event: %v", err))
	}
	return data
}
