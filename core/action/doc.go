// Package action wraps command handlers into bus actions with a uniform reply.
//
// Handlers complete in whatever way suits them: through the done callback,
// by returning a value, by returning a future, or by failing (returning
// Fail or panicking). The wrapper normalizes every outcome into an Envelope:
//
//	{"success": true,  "data": <result>}
//	{"success": false, "data": <error message or raw failure value>}
//
// and replies to the bus exactly once, always with a nil error, so callers
// handle business failures through the envelope rather than the transport.
//
// Input and output may pass through DTOs registered in the registry:
//
//	reg.RegisterDTO("user", "create", dto.Struct[CreateUser]())
//	w := action.New(action.WithRegistry(reg))
//	fn := w.Wrap("user.create", action.Typed(createUser), action.InputDTO("user", "create"))
//
// A missing DTO fails the command with "Dto <type> is not found" without
// invoking the handler.
package action
