// Package dishrec embeds the dish recommender in a Go program.
//
// A Client resolves a user's dish history against a catalog collection, sums the
// stored embeddings into one composite vector and returns the nearest dishes from a
// recommendation pool. With an Embedder configured it can also build collections
// from source rows.
//
//	client, _ := dishrec.New(ctx,
//	    dishrec.WithBolt("data/dishrec.db"),
//	    dishrec.WithEmbedder(myEmbedder),
//	    dishrec.WithDimensions(1536),
//	)
//	defer client.Close()
//
//	_, _ = client.Ingest(ctx, "restaurant_ratings_enhanced", rows)
//	dishes, _ := client.Recommend(ctx, []string{"Pad Thai", "Green Curry"},
//	    "restaurant_ratings_enhanced", "cold_start_restaurant_ratings", 5)
package dishrec
