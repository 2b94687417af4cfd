// Package dynamo is a thin client for the DynamoDB item API.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// Items travel in the wire's attribute-value encoding and are not
// remodeled:
//
//	db, err := dynamo.New(nil, cfg)
//	...
//	_, err = db.PutItem(ctx, "users", dynamo.Item{
//	    "id":   map[string]any{"S": "user-1"},
//	    "name": map[string]any{"S": "Anne"},
//	})
//
// Query follows LastEvaluatedKey transparently:
//
//	q := dynamo.QueryParams{
//	    Table:        "users",
//	    KeyCondition: "id = :id",
//	    Values:       dynamo.Item{":id": map[string]any{"S": "user-1"}},
//	}
//	for item, err := range db.Query(ctx, q) {
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	}
package dynamo
