// Package draft provides a debounced keyed cache for form drafts.
//
// # Overview
//
// A Store holds one in-memory value bound to a key and writes it through to a
// durable store.Store after the value has been quiet for a configurable delay.
// It exists so that half-filled operational forms (fuel ration reports,
// daily oil stock-takes, roster edits) survive reloads without hitting the
// authoritative database on every keystroke.
//
// # Lifecycle
//
//	s := draft.New[Report](backend, draft.WithDelay(500*time.Millisecond))
//	defer s.Close()
//
//	s.Bind(draft.Key("fuelman", reportID), Report{})
//	s.Update(Report{Qty: 5})        // in memory now, persisted after 500ms
//	s.UpdateFunc(func(r Report) Report { r.Qty++; return r })
//
// Bind reads the persisted record synchronously. An absent key, a missing
// record, or a record that no longer decodes all yield the default value.
// The loaded value is then written back under the key after the delay, the
// same as an update, unless WithBindWrite(false) is set.
//
// # Debounce Semantics
//
// Every Update re-arms a single timer. Rapid updates coalesce into one write
// carrying the last value. A timer is tied to the key and generation it was
// armed for; rebinding or closing bumps the generation so a stale timer is
// discarded instead of writing under the wrong key.
//
// # Error Handling
//
// Persistence is best effort. Read, decode, encode and write failures never
// reach the caller of Bind or Update. They are wrapped in *PersistError,
// logged at WARN, counted in Stats, and handed to the ErrorHandler when one
// is configured. Flush is the exception: an explicit flush returns its error.
//
// A nil backing store is valid and turns the Store into a plain in-memory
// holder.
//
// # Pool
//
// Pool keeps one Store per open key for server use, evicting the least
// recently used store when full and closing idle stores in the background.
package draft
