package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/imo-platform/access-control/internal/core/domain"
)

const collectionUsers = "users"

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

type managerDoc struct {
	AccessLevel    string `bson:"access_level"`
	CanCreateUsers bool   `bson:"can_create_users"`
	EmployeeID     string `bson:"employee_id,omitempty"`
	Department     string `bson:"department,omitempty"`
}

type userDoc struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Username           string             `bson:"username"`
	Email              string             `bson:"email"`
	FirstName          string             `bson:"first_name,omitempty"`
	LastName           string             `bson:"last_name,omitempty"`
	Phone              string             `bson:"phone,omitempty"`
	PasswordHash       string             `bson:"password_hash"`
	UserType           string             `bson:"user_type"`
	Manager            *managerDoc        `bson:"manager,omitempty"`
	IsActive           bool               `bson:"is_active"`
	IsVerified         bool               `bson:"is_verified"`
	MustChangePassword bool               `bson:"must_change_password"`
	LastActivity       time.Time          `bson:"last_activity,omitempty"`
	LastLoginIP        string             `bson:"last_login_ip,omitempty"`
	CreatedBy          string             `bson:"created_by,omitempty"`
	CreatedAt          time.Time          `bson:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at"`
}

// FindByID retrieves a user by its hex object id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// FindByUsername retrieves a user by exact username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

// FindByEmail retrieves a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// Create inserts a new user. The unique indexes on username and email turn
// a race between two creators into domain.ErrUserExists.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toUserDoc(u)
	doc.ID = primitive.NewObjectID()

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toDomain(), nil
}

// Update sets the non-nil fields and bumps updated_at.
func (r *UserRepository) Update(ctx context.Context, id string, f domain.UserUpdate) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if f.PasswordHash != nil {
		set["password_hash"] = *f.PasswordHash
	}
	if f.IsActive != nil {
		set["is_active"] = *f.IsActive
	}
	if f.IsVerified != nil {
		set["is_verified"] = *f.IsVerified
	}
	if f.MustChangePassword != nil {
		set["must_change_password"] = *f.MustChangePassword
	}
	if f.LastLoginIP != nil {
		set["last_login_ip"] = *f.LastLoginIP
	}
	return r.updateOne(ctx, id, set)
}

// TouchActivity records the last request time without touching updated_at.
func (r *UserRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	return r.updateOne(ctx, id, bson.M{"last_activity": at.UTC()})
}

// SoftDeactivate marks the user inactive; users are never removed.
func (r *UserRepository) SoftDeactivate(ctx context.Context, id string) error {
	return r.updateOne(ctx, id, bson.M{"is_active": false, "updated_at": time.Now().UTC()})
}

// ListByType returns users of one type ordered by username.
func (r *UserRepository) ListByType(ctx context.Context, userType domain.UserType, activeOnly bool) ([]*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"user_type": string(userType)}
	if activeOnly {
		filter["is_active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}})

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	out := make([]*domain.User, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// Ping verifies the database is reachable; used by the readiness probe.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.col.Database().Client().Ping(ctx, nil)
}

// EnsureIndexes creates the uniqueness and lookup indexes on the users collection.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_type", Value: 1}, {Key: "is_active", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

// --- helpers ---

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepository) updateOne(ctx context.Context, id string, set bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateByID(ctx, oid, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func toUserDoc(u *domain.User) userDoc {
	doc := userDoc{
		Username:           u.Username,
		Email:              u.Email,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Phone:              u.Phone,
		PasswordHash:       u.PasswordHash,
		UserType:           string(u.Type),
		IsActive:           u.IsActive,
		IsVerified:         u.IsVerified,
		MustChangePassword: u.MustChangePassword,
		LastActivity:       u.LastActivity,
		LastLoginIP:        u.LastLoginIP,
		CreatedBy:          u.CreatedBy,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
	if u.Manager != nil {
		doc.Manager = &managerDoc{
			AccessLevel:    string(u.Manager.AccessLevel),
			CanCreateUsers: u.Manager.CanCreateUsers,
			EmployeeID:     u.Manager.EmployeeID,
			Department:     u.Manager.Department,
		}
	}
	return doc
}

func (d *userDoc) toDomain() *domain.User {
	u := &domain.User{
		ID:                 d.ID.Hex(),
		Username:           d.Username,
		Email:              d.Email,
		FirstName:          d.FirstName,
		LastName:           d.LastName,
		Phone:              d.Phone,
		PasswordHash:       d.PasswordHash,
		Type:               domain.UserType(d.UserType),
		IsActive:           d.IsActive,
		IsVerified:         d.IsVerified,
		MustChangePassword: d.MustChangePassword,
		LastActivity:       d.LastActivity,
		LastLoginIP:        d.LastLoginIP,
		CreatedBy:          d.CreatedBy,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	// The profile only exists on managers, whatever the stored document says.
	if u.Type == domain.UserTypeManager && d.Manager != nil {
		u.Manager = &domain.ManagerProfile{
			AccessLevel:    domain.AccessLevel(d.Manager.AccessLevel),
			CanCreateUsers: d.Manager.CanCreateUsers,
			EmployeeID:     d.Manager.EmployeeID,
			Department:     d.Manager.Department,
		}
	}
	return u
}
