package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rickgao/auction-house/internal/model"
)

// Errors
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrHandshake        = errors.New("invalid handshake")
)

// Keywords
const (
	KeyStateQuery   = "GET_AUCTION_STATE"
	KeyExit         = "EXIT_MESSAGE"
	KeyBidAccepted  = "BID_ACCEPTED"
	KeyBidDenied    = "BID_DENIED"
	KeyOutbid       = "BID_OUTBID"
	KeyTransfer     = "TRANSFER_FUNDS"
	KeyAuctionState = "AUCTION_STATE"
	KeyItem         = "ITEM"
	KeyHint         = "HINT"
	KeyRegister     = "AUCTION_HOUSE"
)

// Hint is appended to every state listing.
const Hint = "Type the item ID and the value of your bid to participate."

// Request is a decoded agent message: StateQuery, Bid or Exit.
type Request interface {
	request()
}

// StateQuery asks for a listing of open items.
type StateQuery struct{}

// Bid is an attempt to bid Amount on ItemID.
type Bid struct {
	ItemID model.ItemID
	Amount int64
}

// Exit announces that the agent is leaving.
type Exit struct{}

func (StateQuery) request() {}
func (Bid) request()        {}
func (Exit) request()       {}

// Decode parses one agent line. A trailing '\r' is ignored.
func Decode(line string) (Request, error) {
	line = strings.TrimSuffix(line, "\r")
	fields := strings.Fields(line)

	switch {
	case len(fields) == 1 && fields[0] == KeyStateQuery:
		return StateQuery{}, nil
	case len(fields) == 1 && fields[0] == KeyExit:
		return Exit{}, nil
	case len(fields) == 2:
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: item id %q", ErrMalformedMessage, fields[0])
		}
		amount, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: amount %q", ErrMalformedMessage, fields[1])
		}
		return Bid{ItemID: model.ItemID(id), Amount: amount}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrMalformedMessage, truncate(line, 64))
}

// ParseAgentID validates the first line of an agent connection.
func ParseAgentID(line string) (model.AgentID, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.ContainsAny(line, " \t") {
		return "", fmt.Errorf("%w: agent id %q", ErrHandshake, truncate(line, 64))
	}
	return model.AgentID(line), nil
}

// BidAccepted encodes the reply to an accepted bid.
func BidAccepted() string { return KeyBidAccepted }

// BidDenied encodes the reply to a denied bid.
func BidDenied() string { return KeyBidDenied }

// Outbid encodes the notice for an agent that lost the lead.
func Outbid(agentID model.AgentID) string {
	return KeyOutbid + " " + string(agentID)
}

// ExitNotice encodes a departure notice for agentID.
func ExitNotice(agentID model.AgentID) string {
	return KeyExit + " " + string(agentID)
}

// TransferFunds encodes a settlement request for the bank.
func TransferFunds(winner model.AgentID, houseID string, price int64, itemName string) string {
	return fmt.Sprintf("%s %s %s %d %s", KeyTransfer, winner, houseID, price, itemName)
}

// Register encodes the registration line a house sends to the bank.
func Register(host string, port int) string {
	return fmt.Sprintf("%s %s %d", KeyRegister, host, port)
}

// FormatState renders the reply to a state query, one string per line.
func FormatState(items []model.Item) []string {
	lines := make([]string, 0, len(items)+2)
	lines = append(lines, fmt.Sprintf("%s %d", KeyAuctionState, len(items)))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s %d %d %d %s",
			KeyItem, item.ID, item.MinimumBid, item.CurrentBid, item.Name))
	}
	lines = append(lines, KeyHint+" "+Hint)
	return lines
}

// ParseItem parses one ITEM line of a state listing.
func ParseItem(line string) (model.Item, error) {
	fields := strings.SplitN(strings.TrimSuffix(line, "\r"), " ", 5)
	if len(fields) != 5 || fields[0] != KeyItem {
		return model.Item{}, fmt.Errorf("%w: item line %q", ErrMalformedMessage, truncate(line, 64))
	}

	var nums [3]int64
	for i := range nums {
		n, err := strconv.ParseInt(fields[i+1], 10, 64)
		if err != nil {
			return model.Item{}, fmt.Errorf("%w: item line %q", ErrMalformedMessage, truncate(line, 64))
		}
		nums[i] = n
	}

	return model.Item{
		ID:         model.ItemID(nums[0]),
		MinimumBid: nums[1],
		CurrentBid: nums[2],
		Name:       fields[4],
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
