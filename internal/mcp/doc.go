// Package mcp implements the Model Context Protocol (MCP) server for ficherag.
//
// The server exposes six tools to MCP clients:
//   - ingest_documents: Split, embed and store first-aid reference documents
//   - search_fiches: Hybrid lexical and semantic search over stored fiches
//   - get_fiche: Fetch one fiche by reference
//   - list_chapter: List the fiches of a chapter
//   - ask_question: Answer a question from the retrieved fiches
//   - get_status: Corpus statistics and store health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol messages only, so logs go to stderr.
//
// # Basic Usage
//
//	ficherag serve
//
// # Tool: ingest_documents
//
//	Request:
//	{
//	  "name": "ingest_documents",
//	  "arguments": {
//	    "path": "/data/referentiels",
//	    "include": ["**/*.txt"],
//	    "category_filter": "PSE"
//	  }
//	}
//
//	Response:
//	{
//	  "run_id": "5f0c...",
//	  "documents": 2,
//	  "fiches": 214,
//	  "chunks": 0,
//	  "imported": 214,
//	  "errors": 0,
//	  "duration_ms": 48211
//	}
//
// Only one ingestion runs at a time; a second call fails with
// ErrorCodeIngestInProgress.
//
// # Tool: search_fiches
//
//	Request:
//	{
//	  "name": "search_fiches",
//	  "arguments": {
//	    "query": "Que faire devant une hémorragie externe ?",
//	    "category": "PSE",
//	    "limit": 6
//	  }
//	}
//
// The response lists fiche views (reference, chapter, type, level, title,
// body without its header line, source, similarity). When nothing matches,
// "fiches" is empty and "message" explains it.
//
// # Tool: get_fiche and list_chapter
//
//	{"name": "get_fiche", "arguments": {"reference": "05PR08"}}
//	{"name": "list_chapter", "arguments": {"chapter": "05", "type": "procedure"}}
//
// # Tool: ask_question
//
//	{"name": "ask_question", "arguments": {"question": "Comment poser un garrot ?"}}
//
// The question is rewritten into a technical query when a generation model is
// configured, then searched. The answer cites the fiches used. Without a model
// the retrieved fiches are returned and "generated" is false.
//
// # Error Handling
//
// Handlers return *MCPError with a JSON-RPC code:
//
//	-32602  Invalid params
//	-32603  Internal error
//	-32001  No document matched the ingestion path
//	-32002  Ingestion already in progress
//	-32003  Fiche not found
//	-32004  Empty query
//	-32005  Every retrieval pass failed
package mcp
