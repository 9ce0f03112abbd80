// Package protocol encodes and decodes the line protocol spoken between
// agents, the auction house and the bank.
//
// Agent requests:
//
//	GET_AUCTION_STATE
//	<itemID> <amount>
//	EXIT_MESSAGE
//
// House replies and notices:
//
//	BID_ACCEPTED
//	BID_DENIED
//	BID_OUTBID <agentID>
//	EXIT_MESSAGE <agentID>
//	AUCTION_STATE <n>, n ITEM lines, then a HINT line
//
// Every message is one line. Decode never panics on arbitrary input; it
// returns ErrMalformedMessage for anything it does not recognize.
package protocol
