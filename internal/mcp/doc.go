// Package mcp implements the Model Context Protocol (MCP) server for gamerec.
//
// The server exposes the recommender to MCP clients over stdio:
//   - recommend_games: Rank games for a natural language query
//   - list_genres: List the genres of the served catalog
//   - get_status: Report the served snapshot and database state
//   - prepare_catalog: Build a snapshot from a CSV and serve it
//
// prepare_catalog is only registered when the server is given a preparer
// and a snapshot holder.
//
// # Tool: recommend_games
//
//	Request:
//	{
//	  "name": "recommend_games",
//	  "arguments": {
//	    "query": "cozy farming game to play with friends",
//	    "alpha": 0.7,
//	    "top_n": 5,
//	    "filters": {"max_price": 20, "linux": true, "genres": ["Simulation"]}
//	  }
//	}
//
//	Response:
//	{
//	  "games": [
//	    {
//	      "rank": 1,
//	      "appid": 413150,
//	      "name": "Stardew Valley",
//	      "final_score": 0.81,
//	      "semantic_score": 0.74,
//	      "quality_score": 0.97
//	    }
//	  ],
//	  "total_results": 1,
//	  "snapshot_id": "..."
//	}
//
// A platform filter set to false does not restrict results.
//
// # Error Handling
//
// Failures are returned as MCPError values carrying JSON-RPC codes:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32001: Catalog file not found
//   - -32002: Preparation in progress
//   - -32003: No snapshot prepared
//   - -32004: Empty query
//
// # Client Configuration
//
//	{
//	  "mcpServers": {
//	    "gamerec": {
//	      "command": "/usr/local/bin/gamerec",
//	      "args": ["mcp"]
//	    }
//	  }
//	}
//
// Logs go to stderr; stdout carries the protocol.
package mcp
