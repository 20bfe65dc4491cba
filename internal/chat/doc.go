// Package chat implements the session, presence and broadcast engine behind the
// livechat server.
//
// The engine is made of four state-owning components (Registry, MessageLog,
// TypingTracker and Broadcaster) orchestrated by a Hub. The Hub runs a single
// event loop; every inbound event, connection change and typing-timer expiry is
// funnelled through it, so the components never observe interleaved mutations.
// Transports feed the Hub through Connect, Dispatch and Disconnect and receive
// encoded events through the Sink interface.
package chat
