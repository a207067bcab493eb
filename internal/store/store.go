package store

import "github.com/ipsstech/pairtalk/internal/models"

type Store interface {
	// User operations
	CreateUser(user *models.User) error
	GetUserByUsername(username string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id int64) (*models.User, error)
	SearchUsers(query string, excludeID int64) ([]models.User, error)

	// Message operations. SaveMessage assigns the message id and creation
	// timestamp and updates the conversation pointer in the same transaction.
	SaveMessage(msg *models.Message) (*models.Message, error)
	MessagesBetween(a, b int64, offset, limit int) ([]models.Message, error)
	CountMessagesBetween(a, b int64) (int, error)

	// Conversation operations
	ConversationBetween(a, b int64) (*models.Conversation, error)
	ConversationsFor(userID int64) ([]models.Conversation, error)
}
