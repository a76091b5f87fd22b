// Copyright 2025 Chorus
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mongodb implements the connector contract for MongoDB data
// sources. Payloads name a database, collection and filter document.
package mongodb

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"chorus/engine/connectors/base"
)

// defaultLimit bounds a find when the payload names none.
const defaultLimit = 100

// Connector runs find queries against one MongoDB deployment.
type Connector struct {
	name     string
	database string
	client   *mongo.Client
	logger   *log.Logger
}

var _ base.Connector = (*Connector)(nil)

// New connects to uri and verifies the deployment with a ping.
// database is the default database for calls that do not name one.
func New(ctx context.Context, name, uri, database string) (*Connector, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, base.NewError(name, "Connect", "failed to connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, base.NewError(name, "Connect", "failed to ping deployment", err)
	}

	logger := log.New(os.Stdout, "[MongoDB] ", log.LstdFlags)
	logger.Printf("connected: %s", name)

	return &Connector{name: name, database: database, client: client, logger: logger}, nil
}

func (c *Connector) Name() string { return c.name }
func (c *Connector) Type() string { return "mongodb" }

// Call runs a find against payload["collection"] with an optional
// payload["filter"] document and payload["limit"].
func (c *Connector) Call(ctx context.Context, payload map[string]interface{}) (*base.Result, error) {
	start := time.Now()

	collection, _ := payload["collection"].(string)
	if collection == "" {
		return &base.Result{Success: false, Error: "payload missing collection", Duration: time.Since(start)}, nil
	}

	database := c.database
	if db, ok := payload["database"].(string); ok && db != "" {
		database = db
	}

	filter := bson.M{}
	if raw, ok := payload["filter"].(map[string]interface{}); ok {
		filter = bson.M(raw)
	}

	limit := int64(defaultLimit)
	if raw, ok := payload["limit"].(float64); ok && raw > 0 {
		limit = int64(raw)
	}

	cursor, err := c.client.Database(database).Collection(collection).
		Find(ctx, filter, options.Find().SetLimit(limit))
	if err != nil {
		return &base.Result{
			Success:  false,
			Error:    fmt.Sprintf("find failed on %s.%s: %v", database, collection, err),
			Duration: time.Since(start),
		}, nil
	}
	defer cursor.Close(ctx)

	var docs []map[string]interface{}
	if err := cursor.All(ctx, &docs); err != nil {
		return &base.Result{
			Success:  false,
			Error:    fmt.Sprintf("failed to read documents from %s.%s: %v", database, collection, err),
			Duration: time.Since(start),
		}, nil
	}

	return &base.Result{
		Success:  true,
		Data:     docs,
		Duration: time.Since(start),
		Metadata: map[string]interface{}{"row_count": len(docs)},
	}, nil
}

// Test pings the primary.
func (c *Connector) Test(ctx context.Context) (*base.TestResult, error) {
	start := time.Now()
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return &base.TestResult{
			Success: false,
			Message: fmt.Sprintf("deployment %s unreachable: %v", c.name, err),
			Latency: time.Since(start),
		}, nil
	}
	return &base.TestResult{
		Success: true,
		Message: fmt.Sprintf("deployment %s reachable", c.name),
		Latency: time.Since(start),
	}, nil
}

func (c *Connector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}
