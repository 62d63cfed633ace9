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
	"fmt"
	"strings"
	"time"

	"github.com/blnkfinance/namecard/internal/docstore"
	"github.com/blnkfinance/namecard/internal/messaging"
	"github.com/blnkfinance/namecard/internal/recognizer"
	"github.com/blnkfinance/namecard/model"
)

// Reply kinds. Recognition and storage failures use "recognizer:<kind>"
// and "docstore:<kind>".
const (
	ReplyHelp           = "help"
	ReplyUnknownCommand = "unknown-command"
	ReplyStatus         = "status"
	ReplyBatchStarted   = "batch-started"
	ReplyBatchActive    = "batch-already-active"
	ReplyBatchEnded     = "batch-ended"
	ReplyNotInBatch     = "not-in-batch"
	ReplyBatchFull      = "batch-full"
	ReplyQuotaExceeded  = "quota-exceeded"
	ReplyBlocked        = "blocked"
	ReplyTenantInactive = "tenant-inactive"
	ReplyInvalidImage   = "invalid-image"
	ReplyDownloadFailed = "download-failed"
	ReplyCardSaved      = "card-saved"
	ReplyCardsSaved     = "cards-saved"
	ReplyLostBatch      = "lost-batch"
	ReplyInternalError  = "internal-error"
)

func reply(kind, format string, args ...interface{}) messaging.Message {
	return messaging.Message{Kind: kind, Text: fmt.Sprintf(format, args...)}
}

func helpMessage() messaging.Message {
	return reply(ReplyHelp, "🎯 Business card scanner\n\n"+
		"📸 Send a photo of a card to save it\n"+
		"📦 \"batch\" / 批次 starts batch mode\n"+
		"🏁 \"end batch\" / 結束批次 ends it\n"+
		"📊 \"status\" / 狀態 shows your usage")
}

func unknownCommandMessage() messaging.Message {
	return reply(ReplyUnknownCommand, "❓ Unknown command\nSend \"help\" / 幫助 for instructions")
}

func statusMessage(state *model.SessionState, limits model.TenantLimits, remaining int64) messaging.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Usage\n\nProcessed this period: %d\nRemaining: %d/%d", state.DailyProcessed, remaining, limits.DailyCardLimit)
	if state.InBatch() {
		fmt.Fprintf(&b, "\nBatch mode: on (%d/%d cards)", state.BatchCount, limits.BatchSizeLimit)
	} else {
		b.WriteString("\nBatch mode: off")
	}
	return reply(ReplyStatus, "%s", b.String())
}

func batchStartedMessage(limits model.TenantLimits) messaging.Message {
	return reply(ReplyBatchStarted, "📦 Batch mode started\n\nSend up to %d card photos, then \"end batch\" / 結束批次", limits.BatchSizeLimit)
}

func batchEndedMessage(items []string, startedAt *time.Time) messaging.Message {
	elapsed := ""
	if startedAt != nil {
		elapsed = fmt.Sprintf("\nDuration: %s", time.Since(*startedAt).Round(time.Second))
	}
	return reply(ReplyBatchEnded, "📊 Batch complete!\n\nCards saved: %d%s", len(items), elapsed)
}

func quotaExceededMessage(limit int64, resetAt time.Time) messaging.Message {
	return reply(ReplyQuotaExceeded, "⚠️ Card limit reached (%d)\nResets at %s", limit, resetAt.Format("2006-01-02 15:04 MST"))
}

func blockedMessage(entry *model.BlockEntry) messaging.Message {
	return reply(ReplyBlocked, "⛔ You are temporarily blocked until %s", entry.BlockedUntil.Format("15:04 MST"))
}

func lostBatchMessage(n int) messaging.Message {
	return reply(ReplyLostBatch, "⏰ Your previous batch expired after inactivity. %d card(s) in it were saved but the batch summary was lost.", n)
}

var recognizerReplies = map[recognizer.Kind]string{
	recognizer.KindInvalidCredentials: "🔑 Card recognition is misconfigured for this channel. Please contact the administrator.",
	recognizer.KindQuotaExhausted:     "⏳ Card recognition is over capacity. Please try again later.",
	recognizer.KindSafetyBlocked:      "🚫 This image could not be processed. Please send a photo of a business card.",
	recognizer.KindLowQuality:         "📷 The photo is too blurry. Please retake it in better light.",
	recognizer.KindIncomplete:         "✂️ Part of the card is missing. Please capture the whole card.",
	recognizer.KindLowResolution:      "🔍 The photo resolution is too low. Please move closer.",
	recognizer.KindParseError:         "❌ The card could not be read. Please try again.",
	recognizer.KindNoCardFound:        "🤔 No business card was found in this photo.",
	recognizer.KindTimeout:            "⌛ Recognition timed out. Please try again.",
}

func recognitionFailedMessage(err error) messaging.Message {
	kind := recognizer.KindOf(err)
	text, ok := recognizerReplies[kind]
	if !ok {
		kind, text = recognizer.KindParseError, recognizerReplies[recognizer.KindParseError]
	}
	return messaging.Message{Kind: "recognizer:" + string(kind), Text: text}
}

var docstoreReplies = map[docstore.Kind]string{
	docstore.KindPermissionDenied: "🔒 The card database refused access. Please contact the administrator.",
	docstore.KindNotFound:         "📂 The card database table was not found. Please contact the administrator.",
	docstore.KindSchemaMismatch:   "🧩 The card database fields do not match. Please contact the administrator.",
	docstore.KindRateLimited:      "⏳ The card database is busy. Please try again shortly.",
	docstore.KindNetwork:          "🌐 The card database could not be reached. Please try again.",
}

func storageFailedMessage(err error) messaging.Message {
	kind := docstore.KindOf(err)
	text, ok := docstoreReplies[kind]
	if !ok {
		kind, text = docstore.KindNetwork, docstoreReplies[docstore.KindNetwork]
	}
	return messaging.Message{Kind: "docstore:" + string(kind), Text: text}
}

func orUnknown(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func savedMessage(cards []model.CardRecord, saved, failed int, state *model.SessionState, limits model.TenantLimits) messaging.Message {
	var msg messaging.Message
	if len(cards) == 1 && saved == 1 {
		c := cards[0]
		msg = reply(ReplyCardSaved, "✅ Card saved!\n\nName: %s\nCompany: %s\nTitle: %s\nPhone: %s\nEmail: %s",
			orUnknown(c.Name), orUnknown(c.Company), orUnknown(c.Title), orUnknown(c.Phone), orUnknown(c.Email))
	} else {
		msg = reply(ReplyCardsSaved, "✅ Recognition complete!\n\nSaved: %d\nFailed: %d\nTotal: %d", saved, failed, len(cards))
	}
	if state != nil && state.InBatch() {
		msg.Text += fmt.Sprintf("\n\n📦 Batch progress: %d/%d", state.BatchCount, limits.BatchSizeLimit)
	}
	return msg
}
