/*
Package custodysdk provides a client SDK for the tag custody service.

The card-transport relay uses it to drive the multi-tap authentication
handshake, request secure-messaging frames, and complete ownership
transfers:

	client := custodysdk.NewClient("https://custody.example.com", bearerToken)

	begin, err := client.BeginAuth(ctx, custodysdk.AuthBeginRequest{
		TokenID: tokenID,
		UserID:  userID,
		KeyNo:   0,
	})
	// forward begin.Frame to the card, return the raw response:
	round, err := client.ContinueAuth(ctx, custodysdk.AuthContinueRequest{
		SessionID:    begin.SessionID,
		CardResponse: cardResponse,
	})

All byte fields are raw bytes; encoding/json transports them as base64. The
SDK never sees plaintext card keys, only frames and key fingerprints.
*/
package custodysdk
