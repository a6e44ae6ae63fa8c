package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"pubg-account-watch/internal/events"
	"pubg-account-watch/internal/storage"
)

// AddSource registers or updates a monitored chat. Upserting an existing
// source never resets its processed counter.
func (a *App) AddSource(ctx context.Context, chatID int64, title, sourceType string, trusted bool) error {
	if sourceType != "channel" && sourceType != "group" {
		return fmt.Errorf("source type must be channel or group, got %q", sourceType)
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	src := storage.Source{
		ChatID:    chatID,
		Title:     title,
		Type:      sourceType,
		Trusted:   trusted,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.UpsertSource(ctx, src); err != nil {
		return fmt.Errorf("add source: %w", err)
	}

	a.Logger.Info().Int64("chat", chatID).Str("title", title).Bool("trusted", trusted).Msg("source added")
	return nil
}

// RemoveSource hard-deletes a source. Historical profiles keep their copy of
// the chat id. The removal event is delivered synchronously; a one-shot
// command has no running dispatch loop.
func (a *App) RemoveSource(ctx context.Context, chatID int64) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	src, err := store.GetSource(ctx, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrSourceNotFound) {
			return fmt.Errorf("source %d not found", chatID)
		}
		return err
	}

	if err := store.DeleteSource(ctx, chatID); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	a.Logger.Info().Int64("chat", chatID).Str("title", src.Title).Msg("source removed")

	if notifier := a.newNotifier(); notifier != nil {
		ev := events.Event{
			Kind:         events.KindSourceRemoved,
			At:           time.Now().UTC(),
			SourceChatID: chatID,
			SourceTitle:  src.Title,
		}
		if err := notifier.Notify(ctx, ev); err != nil {
			a.Logger.Error().Err(err).Msg("failed to deliver source-removed event")
		}
	}
	return nil
}

// ListSources prints the monitored sources as a table.
func (a *App) ListSources(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sources, err := store.ListSources(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(os.Stdout, "no sources configured")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Chat ID\tTitle\tType\tTrusted\tProcessed\tLast Seen (UTC)")
	for _, src := range sources {
		lastSeen := "-"
		if !src.LastSeenAt.IsZero() {
			lastSeen = src.LastSeenAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%t\t%d\t%s\n",
			src.ChatID, src.Title, src.Type, src.Trusted, src.MessagesProcessed, lastSeen)
	}
	return writer.Flush()
}
