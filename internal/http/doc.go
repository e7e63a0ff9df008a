// Package http exposes the application services over HTTP.
//
// Every operation is a named procedure ("domain.operation") in a Registry:
//   - POST /rpc/{procedure} takes the JSON input as the request body.
//   - GET /rpc/{procedure}?input=<json> is accepted for read-only procedures.
//   - GET /rpc/ws upgrades to a WebSocket that accepts {"id","procedure","input"} frames
//     and answers each with {"id","result"} or {"id","error"}.
//
// Results are wrapped as {"result": ...}; failures as {"error": {"code","message"}} with
// the HTTP status derived from the code. The session token is read from the
// Authorization bearer header or the session_token cookie, which auth.login sets and
// auth.logout clears.
//
// POST /upload and GET /uploads/{id} handle file attachments. /healthz and /metrics are
// unauthenticated.
package http
