// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides chat persistence.
package storage

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/jeranaias/polychat/internal/model"
)

// Mongo defaults.
const (
	DefaultMongoDatabase   = "chatapp"
	DefaultMongoCollection = "chats"
)

// MongoStore keeps one document per chat, with the chat ID as _id.
type MongoStore struct {
	uri        string
	database   string
	collection string

	mu     sync.Mutex
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore creates a store for uri. Empty names use the defaults.
func NewMongoStore(uri, database, collection string) *MongoStore {
	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}
	return &MongoStore{uri: uri, database: database, collection: collection}
}

// Init connects and verifies the server is reachable.
func (s *MongoStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
	if err != nil {
		return fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("pinging mongo: %w", err)
	}

	s.client = client
	s.coll = client.Database(s.database).Collection(s.collection)
	return nil
}

// LoadAll returns every chat, newest first.
func (s *MongoStore) LoadAll(ctx context.Context) ([]model.Chat, error) {
	coll, err := s.collectionHandle()
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("fetching chats: %w", err)
	}
	defer cur.Close(ctx)

	chats := make([]model.Chat, 0)
	if err := cur.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("decoding chats: %w", err)
	}
	sortNewestFirst(chats)
	return chats, nil
}

// Save replaces the chat document, inserting it when absent.
func (s *MongoStore) Save(ctx context.Context, chat model.Chat) error {
	if chat.ID == "" {
		return ErrInvalidChatID
	}
	coll, err := s.collectionHandle()
	if err != nil {
		return err
	}

	_, err = coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: chat.ID}}, chat, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving chat %s: %w", chat.ID, err)
	}
	return nil
}

// Delete removes the chat document.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	coll, err := s.collectionHandle()
	if err != nil {
		return err
	}
	if _, err := coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("deleting chat %s: %w", id, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	s.coll = nil
	return err
}

func (s *MongoStore) collectionHandle() (*mongo.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coll == nil {
		return nil, ErrNotInitialized
	}
	return s.coll, nil
}
