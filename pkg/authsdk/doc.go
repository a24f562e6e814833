/*
Package authsdk provides a client SDK for the twofa TOTP service, along with
the wire types and error values the server writes.

# Overview

The service hands out a user ID and a shared secret at registration, confirms
enrollment with the first code from an authenticator app, and afterwards
validates codes on demand:

	client := authsdk.NewSDKClient("https://2fa.example.com")

	reg, err := client.Register(ctx, authsdk.RegistrationRequest{Label: "alice@example.com"})
	// show reg.QRCode or reg.OTPAuthURL to the user

	res, err := client.VerifyKey(ctx, reg.UserID, codeFromApp)
	if res.Verified {
		// enrollment complete
	}

	ok, err := client.ValidateKey(ctx, reg.UserID, codeFromApp)

A code that does not match is a normal outcome, reported through the Verified
or Validated field, never as an error.

# Error Handling

Every non-2xx response is returned as an *APIError. The predefined values can
be matched with errors.Is:

	_, err := client.VerifyKey(ctx, userID, code)
	switch {
	case errors.Is(err, authsdk.ErrUnknownUser):
		// never registered
	case errors.Is(err, authsdk.ErrAlreadyVerified):
		// enrollment was already confirmed
	}

The server uses the same values to write its responses with WriteError.

# Health

GetLiveness and GetReadiness call /livez and /readyz. Readiness includes the
record store check.
*/
package authsdk
