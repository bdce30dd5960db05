/*
	Package jsonrpc2 implements bidirectional JSONRPC 2.0 over byte streams.

	Frames are delimited by a textual Content-Length header, the same framing
	used by language servers. A Transport moves whole frames; the stream
	transport does this over TCP or unix sockets, and the ws subpackages do it
	over websockets.

	Registry is the method table. It is built once from typed descriptors
	(RequestMethod and NotificationMethod) and tells the Codec how to decode
	params by method name. Responses carry no method, so their result type is
	recalled from the connection's pending table instead.

	Conn is one connection. It owns the pending table for calls it issued and
	the cancellation table for requests it is handling. Once a Conn is started
	it does not care which side initiated the connection: Client dials,
	Server accepts, and both can Send, Notify and handle calls.

	Handlers receive a Request handle which must be replied to exactly once. A
	peer can cancel an in-flight request with a $/cancelRequest notification,
	which fires the handle's CancellationToken.
*/
package jsonrpc2
