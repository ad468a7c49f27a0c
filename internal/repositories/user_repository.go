package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned by every UserRepository when no user matches.
var ErrUserNotFound = errors.New("user not found")

// UserRepository is the identity directory: it names channel members and maps
// Firebase UIDs onto numeric user ids.
type UserRepository interface {
	CreateUser(user *models.User) error
	GetUserByID(id uint) (*models.User, error)
	GetUserByFirebaseUID(firebaseUID string) (*models.User, error)
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// CreateUser creates a new user in PostgreSQL
func (r *PostgresUserRepository) CreateUser(user *models.User) error {
	return r.db.Create(user).Error
}

// GetUserByID retrieves a user by ID from PostgreSQL
func (r *PostgresUserRepository) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, userLookupError(err)
	}
	return &user, nil
}

// GetUserByFirebaseUID retrieves a user by Firebase UID from PostgreSQL
func (r *PostgresUserRepository) GetUserByFirebaseUID(firebaseUID string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("firebase_uid = ?", firebaseUID).First(&user).Error; err != nil {
		return nil, userLookupError(err)
	}
	return &user, nil
}

func userLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, mongo.ErrNoDocuments) {
		return ErrUserNotFound
	}
	return err
}

// MongoUserRepository implements UserRepository for MongoDB. Lookups are
// bounded by a short timeout since the interface carries no context.
type MongoUserRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongoUserRepository creates a new MongoUserRepository
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{collection: db.Collection("users"), timeout: 5 * time.Second}
}

func (r *MongoUserRepository) CreateUser(user *models.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, user)
	return err
}

func (r *MongoUserRepository) GetUserByID(id uint) (*models.User, error) {
	return r.findOne(bson.M{"_id": id})
}

func (r *MongoUserRepository) GetUserByFirebaseUID(firebaseUID string) (*models.User, error) {
	return r.findOne(bson.M{"firebase_uid": firebaseUID})
}

func (r *MongoUserRepository) findOne(filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var user models.User
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, userLookupError(err)
	}
	return &user, nil
}

// MemoryUserRepository is an in-process directory for development and tests.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	nextID uint
	users  map[uint]models.User
}

func NewMemoryUserRepository(seed ...models.User) *MemoryUserRepository {
	r := &MemoryUserRepository{users: make(map[uint]models.User)}
	for i := range seed {
		_ = r.CreateUser(&seed[i])
	}
	return r
}

func (r *MemoryUserRepository) CreateUser(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == 0 {
		r.nextID++
		user.ID = r.nextID
	} else if user.ID > r.nextID {
		r.nextID = user.ID
	}
	if _, exists := r.users[user.ID]; exists {
		return errors.New("user already exists")
	}
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) GetUserByID(id uint) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) GetUserByFirebaseUID(firebaseUID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.FirebaseUID != nil && *u.FirebaseUID == firebaseUID {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}
