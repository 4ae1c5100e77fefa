package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/strawberry/sitebuilder-go/internal/assistant"
)

// InitialMessage is the first message of a new thread. It hands the assistant
// the document the user is editing together with the rules for changing it.
func InitialMessage(currentHTML string) string {
	if currentHTML == "" {
		return "Start a new website for the user. Wait for their instructions before creating anything."
	}
	return "The user is editing an existing website. Its current HTML is:\n\n" + currentHTML + "\n\n" +
		"Rules for every change:\n" +
		"- Keep every URL that starts with /static/websites/ exactly as it is.\n" +
		"- Never replace those URLs with /static/temp_media/ copies.\n" +
		"- Keep the existing images unless the user asks to replace them.\n" +
		"- Modify only what the user requests."
}

// StartThread creates a thread seeded with initialMessage and waits for the
// assistant to finish its first run. Tool calls of that run are left for the
// first exchange to cancel.
func StartThread(ctx context.Context, provider assistant.Provider, assistantID, instructions, initialMessage string, poll time.Duration) (string, error) {
	threadID, err := provider.CreateThread(ctx, initialMessage)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	run, err := provider.CreateRun(ctx, threadID, assistantID, instructions)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	for run.Status.Pending() {
		if err := sleep(ctx, poll); err != nil {
			return "", err
		}
		if run, err = provider.GetRun(ctx, threadID, run.ID); err != nil {
			return "", fmt.Errorf("poll run: %w", err)
		}
	}
	return threadID, nil
}
