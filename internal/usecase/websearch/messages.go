package websearch

import (
	"context"
	"encoding/json"
	"time"

	"websearch/internal/domain"
)

// messages are the user-visible strings for one language.
type messages struct {
	searching    string
	readProgress string // percent, source
	finished     string // source, document count
	prompt       string // query, results
	citation     string
	references   string
}

var catalog = map[string]messages{
	"en": {
		searching:    "Searching the web...",
		readProgress: "Read %d%% of %s",
		finished:     "Finished reading %s, I made %d thoughts on it.",
		prompt: `
Answer the user's QUESTION clearly, relying only on the information
contained in the search RESULTS.

QUESTION:
%s

RESULTS:
%s
`,
		citation:   "Citation",
		references: "References",
	},
	"it": {
		searching:    "Sto cercando in rete...",
		readProgress: "Letto il %d%% di %s",
		finished:     "Ho finito di leggere %s, ci ho fatto %d riflessioni.",
		prompt: `
Rispondi alla DOMANDA dell'utente in modo chiaro, basati esclusivamente sulle informazioni
contenute nei RISULTATI nella ricerca.

DOMANDA:
%s

RISULTATI:
%s
`,
		citation:   "Citazione",
		references: "Riferimenti",
	},
}

func messagesFor(lang string) messages {
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog[DefaultLanguage]
}

// publish sends an event with a JSON payload. A nil bus is a no-op.
func publish(ctx context.Context, bus domain.EventBus, t domain.EventType, payload any) {
	if bus == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	bus.Publish(ctx, domain.Event{
		Type:      t,
		Timestamp: time.Now(),
		SessionID: domain.SessionIDFromContext(ctx),
		Payload:   raw,
	})
}

// notify shows msg to the user while the tool runs.
func notify(ctx context.Context, bus domain.EventBus, msg string) {
	publish(ctx, bus, domain.EventNotification, domain.NotificationPayload{Message: msg})
}
