package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/taka-pay/taka_pay/internal/ledger"
)

type archiveDocument struct {
	TransactionID string    `bson:"transaction_id"`
	Type          string    `bson:"type"`
	Amount        int64     `bson:"amount"`
	Sender        string    `bson:"sender,omitempty"`
	Receiver      string    `bson:"receiver,omitempty"`
	Agent         string    `bson:"agent,omitempty"`
	Fee           int64     `bson:"fee"`
	Commission    int64     `bson:"commission"`
	CreatedAt     time.Time `bson:"created_at"`
	ArchivedAt    time.Time `bson:"archived_at"`
}

// MongoArchiver stores transaction snapshots in a MongoDB collection.
type MongoArchiver struct {
	collection *mongo.Collection
}

// NewMongoArchiver builds an archiver writing to the transaction_archive
// collection of the named database.
func NewMongoArchiver(client *mongo.Client, dbName string) *MongoArchiver {
	collection := client.Database(dbName).Collection("transaction_archive")
	return &MongoArchiver{collection: collection}
}

// Archive inserts one snapshot document for the committed transaction.
func (a *MongoArchiver) Archive(ctx context.Context, txn ledger.Transaction) error {
	doc := archiveDocument{
		TransactionID: txn.ID,
		Type:          txn.Type,
		Amount:        txn.Amount,
		Sender:        txn.Sender,
		Receiver:      txn.Receiver,
		Agent:         txn.Agent,
		Fee:           txn.Fee,
		Commission:    txn.Commission,
		CreatedAt:     txn.CreatedAt,
		ArchivedAt:    time.Now().UTC(),
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert transaction archive: %w", err)
	}
	return nil
}
