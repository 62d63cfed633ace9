/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package namecard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/namecard/internal/messaging"
	"github.com/blnkfinance/namecard/internal/metrics"
	"github.com/blnkfinance/namecard/internal/quota"
	"github.com/blnkfinance/namecard/internal/recognizer"
	"github.com/blnkfinance/namecard/internal/session"
	"github.com/blnkfinance/namecard/internal/tenant"
	"github.com/blnkfinance/namecard/model"
)

type command int

const (
	cmdUnknown command = iota
	cmdHelp
	cmdBatch
	cmdEndBatch
	cmdStatus
)

var commands = map[string]command{
	"help":      cmdHelp,
	"說明":        cmdHelp,
	"幫助":        cmdHelp,
	"batch":     cmdBatch,
	"批次":        cmdBatch,
	"批量":        cmdBatch,
	"end batch": cmdEndBatch,
	"結束批次":      cmdEndBatch,
	"完成批次":      cmdEndBatch,
	"status":    cmdStatus,
	"狀態":        cmdStatus,
	"進度":        cmdStatus,
}

func parseCommand(text string) command {
	return commands[strings.ToLower(strings.Join(strings.Fields(text), " "))]
}

// Accept resolves the tenant behind a webhook and verifies its signature.
// routingKey overrides the destination carried in the body when set. A
// webhook for an unknown tenant is acknowledged with no events.
func (n *Namecard) Accept(ctx context.Context, routingKey string, body []byte, signature string) (*model.Tenant, []messaging.Event, error) {
	ctx, span := tracer.Start(ctx, "Accept Webhook")
	defer span.End()

	destination, events, err := messaging.ParseWebhook(body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if routingKey == "" {
		routingKey = destination
	}
	span.SetAttributes(attribute.String("routing.key", routingKey))

	t, usedDefault, err := n.tenants.ResolveOrDefault(ctx, routingKey)
	if err != nil {
		entry := logrus.WithField("routing_key", routingKey).WithError(err)
		if errors.Is(err, tenant.ErrTenantNotFound) {
			entry.Warn("webhook for unknown tenant dropped")
		} else {
			entry.Error("tenant lookup failed, webhook dropped")
		}
		return nil, nil, nil
	}
	if usedDefault {
		logrus.WithField("routing_key", routingKey).Debug("serving webhook with the default tenant")
	}

	if n.verifySignature {
		if err := n.verify(t, body, signature); err != nil {
			return nil, nil, err
		}
	}

	for i := range events {
		events[i].RoutingKey = routingKey
	}
	return t, events, nil
}

func (n *Namecard) verify(t *model.Tenant, body []byte, signature string) error {
	secret, err := n.credentials.Resolve(t.Credentials.ChannelSecretRef)
	if err != nil {
		logrus.WithField("tenant_id", t.TenantID).WithError(err).Error("channel secret unavailable")
		return ErrInvalidSignature
	}
	if !messaging.VerifySignature(secret, body, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// HandleWebhook accepts a webhook and processes its events in order before
// returning.
func (n *Namecard) HandleWebhook(ctx context.Context, routingKey string, body []byte, signature string) error {
	t, events, err := n.Accept(ctx, routingKey, body, signature)
	if err != nil {
		return err
	}
	for _, ev := range events {
		n.HandleEvent(ctx, t, ev)
	}
	return nil
}

// Dispatch processes events in the background, detached from ctx
// cancellation. Wait blocks until every dispatched event is done.
func (n *Namecard) Dispatch(ctx context.Context, t *model.Tenant, events []messaging.Event) {
	if t == nil || len(events) == 0 {
		return
	}
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		ctx := context.WithoutCancel(ctx)
		for _, ev := range events {
			n.HandleEvent(ctx, t, ev)
		}
	}()
}

func (n *Namecard) Wait() {
	n.inflight.Wait()
}

// HandleEvent runs one event through admission and processing and sends
// the resulting replies. The replies are returned as sent.
func (n *Namecard) HandleEvent(ctx context.Context, t *model.Tenant, ev messaging.Event) []messaging.Message {
	ctx, span := tracer.Start(ctx, "Handle Event")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", t.TenantID),
		attribute.String("event.type", string(ev.Type)),
	)

	replies := n.dispatch(ctx, t, ev)
	if len(replies) > 0 {
		n.send(ctx, t, ev, replies)
	}
	return replies
}

// send answers through the reply token and falls back to a push to the
// user when the token is missing or no longer accepted.
func (n *Namecard) send(ctx context.Context, t *model.Tenant, ev messaging.Event, replies []messaging.Message) {
	log := eventLogger(t, ev)
	if ev.ReplyToken != "" {
		err := n.messaging.Reply(ctx, t, ev.ReplyToken, replies...)
		if err == nil {
			return
		}
		trace.SpanFromContext(ctx).RecordError(err)
		log.WithError(err).Warn("reply failed, pushing instead")
	}
	if ev.UserID == "" {
		log.Error("reply undeliverable, event has no user")
		return
	}
	if err := n.messaging.Push(ctx, t, ev.UserID, replies...); err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		log.WithError(err).Error("failed to push reply")
	}
}

func eventLogger(t *model.Tenant, ev messaging.Event) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"tenant_id":  t.TenantID,
		"user_id":    ev.UserID,
		"message_id": ev.MessageID,
	})
}

func internalErrorMessage() messaging.Message {
	return reply(ReplyInternalError, "❌ Something went wrong. Please try again.")
}

// admit runs the tenant and block checks. The entry is set with
// ErrUserBlocked. Block list failures let the message through.
func (n *Namecard) admit(ctx context.Context, t *model.Tenant, ev messaging.Event) (*model.BlockEntry, error) {
	log := eventLogger(t, ev)

	if !t.IsActive() {
		metrics.AdmissionDecisions.WithLabelValues("tenant", "denied").Inc()
		return nil, ErrTenantInactive
	}

	entry, blocked, err := n.blocks.IsBlocked(ctx, t.TenantID, ev.UserID)
	if err != nil {
		log.WithError(err).Warn("block list unavailable, continuing")
	} else if blocked {
		metrics.AdmissionDecisions.WithLabelValues("block", "denied").Inc()
		return entry, ErrUserBlocked
	}
	if entry, err := n.blocks.Observe(ctx, t.TenantID, ev.UserID); err != nil {
		log.WithError(err).Warn("abuse check unavailable, continuing")
	} else if entry != nil {
		log.WithField("blocked_until", entry.BlockedUntil).Warn("user blocked for message flooding")
		return entry, ErrUserBlocked
	}
	return nil, nil
}

func (n *Namecard) dispatch(ctx context.Context, t *model.Tenant, ev messaging.Event) []messaging.Message {
	log := eventLogger(t, ev)

	if entry, err := n.admit(ctx, t, ev); err != nil {
		if errors.Is(err, ErrUserBlocked) {
			return []messaging.Message{blockedMessage(entry)}
		}
		return []messaging.Message{reply(ReplyTenantInactive, "🚧 This service is not active yet. Please contact the administrator.")}
	}

	state, err := n.sessions.GetStatus(ctx, t, ev.UserID)
	if err != nil {
		log.WithError(err).Error("failed to load session")
		return []messaging.Message{internalErrorMessage()}
	}

	var replies []messaging.Message
	if state.LostBatchItems > 0 {
		replies = append(replies, lostBatchMessage(state.LostBatchItems))
	}

	switch ev.Type {
	case messaging.EventText:
		replies = append(replies, n.handleCommand(ctx, t, ev, state))
	case messaging.EventImage:
		replies = append(replies, n.handleImage(ctx, t, ev, state))
	}
	return replies
}

func (n *Namecard) handleCommand(ctx context.Context, t *model.Tenant, ev messaging.Event, state *model.SessionState) messaging.Message {
	log := eventLogger(t, ev)
	limits := t.Limits

	switch parseCommand(ev.Text) {
	case cmdHelp:
		return helpMessage()

	case cmdBatch:
		_, err := n.sessions.StartBatch(ctx, t, ev.UserID)
		switch {
		case errors.Is(err, session.ErrBatchActive):
			return reply(ReplyBatchActive, "📦 Batch mode is already on (%d/%d cards)", state.BatchCount, limits.BatchSizeLimit)
		case errors.Is(err, session.ErrQuotaExhausted):
			metrics.AdmissionDecisions.WithLabelValues("batch", "denied").Inc()
			return quotaExceededMessage(int64(limits.DailyCardLimit), quota.NextReset(n.quota.Now(), limits.ResetCadence, limits.ResetDay))
		case err != nil:
			log.WithError(err).Error("failed to start batch")
			return internalErrorMessage()
		}
		return batchStartedMessage(limits)

	case cmdEndBatch:
		items, _, err := n.sessions.EndBatch(ctx, t, ev.UserID)
		switch {
		case errors.Is(err, session.ErrNotInBatch):
			return reply(ReplyNotInBatch, "⚠️ Batch mode is not on")
		case err != nil:
			log.WithError(err).Error("failed to end batch")
			return internalErrorMessage()
		}
		return batchEndedMessage(items, state.BatchStartedAt)

	case cmdStatus:
		remaining, err := n.quota.Remaining(ctx, quota.ScopeKey(t.TenantID, ev.UserID), int64(limits.DailyCardLimit), limits.ResetCadence, limits.ResetDay)
		if err != nil {
			log.WithError(err).Warn("quota peek failed")
			return internalErrorMessage()
		}
		return statusMessage(state, limits, remaining)
	}
	return unknownCommandMessage()
}

// admitImage checks batch capacity and records the image against the
// period quota.
func (n *Namecard) admitImage(ctx context.Context, t *model.Tenant, ev messaging.Event, state *model.SessionState) (quota.Decision, error) {
	limits := t.Limits
	if state.InBatch() && state.BatchCount >= limits.BatchSizeLimit {
		metrics.AdmissionDecisions.WithLabelValues("batch", "denied").Inc()
		return quota.Decision{}, ErrBatchCapacity
	}

	decision, err := n.quota.CheckPeriod(ctx, quota.ScopeKey(t.TenantID, ev.UserID), int64(limits.DailyCardLimit), limits.ResetCadence, limits.ResetDay)
	if err != nil {
		return decision, err
	}
	if !decision.Allowed {
		return decision, ErrQuotaExceeded
	}
	return decision, nil
}

func (n *Namecard) handleImage(ctx context.Context, t *model.Tenant, ev messaging.Event, state *model.SessionState) messaging.Message {
	log := eventLogger(t, ev)
	limits := t.Limits

	decision, err := n.admitImage(ctx, t, ev, state)
	if err != nil {
		switch {
		case errors.Is(err, ErrBatchCapacity):
			return reply(ReplyBatchFull, "📦 The batch is full (%d cards). Send \"end batch\" / 結束批次 to finish it.", limits.BatchSizeLimit)
		case errors.Is(err, ErrQuotaExceeded):
			return quotaExceededMessage(decision.Limit, decision.ResetAt)
		}
		log.WithError(err).Error("quota check failed")
		return internalErrorMessage()
	}

	ctx, span := tracer.Start(ctx, "Process Card Image")
	defer span.End()

	// a unit only counts once a card is saved
	saved := false
	defer func() {
		if saved {
			return
		}
		if err := n.quota.Release(context.WithoutCancel(ctx), decision); err != nil {
			log.WithError(err).Warn("failed to release quota unit")
		}
	}()

	image, err := n.messaging.FetchContent(ctx, t, ev.MessageID)
	if err != nil {
		span.RecordError(err)
		log.WithError(err).Error("failed to download image")
		return reply(ReplyDownloadFailed, "❌ The image could not be downloaded. Please send it again.")
	}
	if err := ValidateImage(image, n.maxImageBytes); err != nil {
		log.WithError(err).Info("image rejected")
		return reply(ReplyInvalidImage, "❌ Unsupported image. Please send a JPG, PNG or GIF under %d MB.", n.maxImageBytes>>20)
	}

	result, err := n.recognizer.Recognize(ctx, t, image)
	if err == nil && (result == nil || len(result.Cards) == 0) {
		err = &recognizer.Error{Kind: recognizer.KindNoCardFound, Message: "recognizer returned no cards"}
	}
	if err != nil {
		span.RecordError(err)
		msg := recognitionFailedMessage(err)
		metrics.RecognitionResults.WithLabelValues(strings.TrimPrefix(msg.Kind, "recognizer:")).Inc()
		log.WithError(err).Warn("card recognition failed")
		return msg
	}
	metrics.RecognitionResults.WithLabelValues("success").Inc()

	handles := make([]model.RecordHandle, 0, len(result.Cards))
	var firstErr error
	for i := range result.Cards {
		card := result.Cards[i]
		card.SubmittedBy = ev.UserID
		handle, err := n.documents.Create(ctx, t, card)
		if err != nil {
			span.RecordError(err)
			log.WithError(err).Error("failed to save card")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		handles = append(handles, handle)
	}
	if len(handles) == 0 {
		return storageFailedMessage(firstErr)
	}
	saved = true

	if updated, err := n.sessions.RecordProcessed(ctx, t, ev.UserID, len(handles)); err != nil {
		log.WithError(err).Warn("failed to record processed cards")
	} else {
		state = updated
	}

	if state.InBatch() {
		for _, h := range handles {
			added, updated, err := n.sessions.AddToBatch(ctx, t, ev.UserID, h.ID)
			if err != nil {
				log.WithError(err).Warn("failed to add card to batch")
				break
			}
			state = updated
			if added != session.Accepted {
				log.WithField("result", added.String()).Warn("card saved outside the batch")
				break
			}
		}
	}

	if taskID, err := n.uploads.Submit(ctx, image, handles, t.TenantID, ev.UserID); err != nil {
		log.WithField("task_id", taskID).WithError(err).Warn("image upload not queued, parked for replay")
	}

	return savedMessage(result.Cards, len(handles), len(result.Cards)-len(handles), state, limits)
}
