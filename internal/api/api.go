package api

import (
	"context"

	"mailview/backend/internal/contacts"
	"mailview/backend/internal/models"
)

// Session is the surface of the session core the handlers drive. Declared
// here so handler tests can substitute a stub.
type Session interface {
	OpenFolder(folder string)
	CloseFolder(folder string)
	MergedView(folder string) []models.Message
	Send(ctx context.Context, compose models.ComposeFields) ([]models.PendingMessage, error)
	Contacts() []contacts.Suggestion
	PokeFolder(folder string)
}
