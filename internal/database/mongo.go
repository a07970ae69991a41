package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/models"
)

const namespaceExistsCode = 48

func NewMongoClient(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.Timeout).
		SetServerSelectionTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func userSchema() bson.M {
	roles := bson.A{}
	for _, r := range []models.UserRole{models.UserRoleStudent, models.UserRoleTutor, models.UserRoleParent, models.UserRoleAdmin} {
		roles = append(roles, string(r))
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{models.FieldEmail, models.FieldPassword, models.FieldRole, models.FieldIsVerified},
			"properties": bson.M{
				models.FieldEmail:      bson.M{"bsonType": "string", "pattern": "^[^A-Z]+$"},
				models.FieldPassword:   bson.M{"bsonType": "string", "minLength": 1},
				models.FieldRole:       bson.M{"enum": roles},
				models.FieldIsVerified: bson.M{"bsonType": "bool"},
				models.FieldSubscriptionTier: bson.M{"enum": bson.A{
					string(models.SubscriptionFree), string(models.SubscriptionPremium),
				}},
			},
		},
	}
}

// EnsureUserCollection creates the users collection with its validator, or
// refreshes the validator on an existing one, then builds the indexes the
// identity lookups rely on.
func EnsureUserCollection(ctx context.Context, db *mongo.Database) error {
	schema := userSchema()
	err := db.CreateCollection(ctx, models.UsersCollection, options.CreateCollection().SetValidator(schema))
	if err != nil {
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Code != namespaceExistsCode {
			return fmt.Errorf("create users collection: %w", err)
		}
		if err := db.RunCommand(ctx, bson.D{
			{Key: "collMod", Value: models.UsersCollection},
			{Key: "validator", Value: schema},
		}).Err(); err != nil {
			return fmt.Errorf("update users validator: %w", err)
		}
	}

	_, err = db.Collection(models.UsersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: models.FieldEmail, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: models.FieldVerificationToken, Value: 1}},
			Options: options.Index().SetSparse(true).SetName("verification_token"),
		},
		{
			Keys:    bson.D{{Key: models.FieldResetPasswordToken, Value: 1}},
			Options: options.Index().SetSparse(true).SetName("reset_password_token"),
		},
		{
			Keys:    bson.D{{Key: models.FieldRole, Value: 1}},
			Options: options.Index().SetName("role"),
		},
	})
	if err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}
	return nil
}
