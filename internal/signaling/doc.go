// Package signaling implements the relay wire protocol and the client that
// keeps one websocket connection to the relay.
//
// Every frame is a single JSON object whose message_type field names one of
// a closed set of variants. Frames that do not decode are dropped at the
// client without tearing the connection down, so newer relays can add
// vocabulary without breaking older clients.
package signaling
