package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeBidDigest computes the commitment hash for a sealed bid envelope.
// Bidders receive it at submission time and can later check it against the
// attested result document.
//
// Formula: SHA256(auction_id + "|" + bidder + "|" + envelope + "|" + nonce)
// where envelope is the base64 ciphertext exactly as submitted.
func ComputeBidDigest(auctionID, bidder, envelope, nonce string) string {
	data := fmt.Sprintf("%s|%s|%s|%s", auctionID, bidder, envelope, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeResultDigest computes the hash embedded in result attestations.
//
// Formula: SHA256(auction_id + "|" + supply + "|" + clearing_price + "|" +
// won[0] + "," + won[1] + ... + "|" + nonce), with winnings in rank order.
func ComputeResultDigest(auctionID string, totalSupply, clearingPrice uint64, wonByRank []uint64, nonce string) string {
	data := fmt.Sprintf("%s|%d|%d|", auctionID, totalSupply, clearingPrice)
	for i, w := range wonByRank {
		if i > 0 {
			data += ","
		}
		data += fmt.Sprintf("%d", w)
	}
	data += "|" + nonce
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
