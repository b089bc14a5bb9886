package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var totpIssuer = "AuthGate"

const totpQRSize = 200

func ConfigureTOTP(issuer string) {
	if issuer != "" {
		totpIssuer = issuer
	}
}

// GenerateTOTPSecret mints a fresh 160-bit base32 secret bound to the given
// account label. Returns the secret and its provisioning URI.
func GenerateTOTPSecret(account string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
		SecretSize:  20,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyTOTPCode accepts the current 30-second step and one step on either
// side, tolerating clock drift between the authenticator and the server.
func VerifyTOTPCode(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// TOTPProvisioningURI rebuilds the otpauth key URI for a previously stored
// secret, matching the layout authenticator apps expect.
func TOTPProvisioningURI(account, secret string) string {
	label := url.PathEscape(totpIssuer) + ":" + url.PathEscape(account)
	return fmt.Sprintf(
		"otpauth://totp/%s?secret=%s&issuer=%s",
		label,
		url.QueryEscape(secret),
		url.QueryEscape(totpIssuer),
	)
}

// TOTPQRCodeDataURI renders the provisioning URI as a PNG QR code embedded in
// a data URI, ready to drop into an <img> tag.
func TOTPQRCodeDataURI(account, secret string) (string, error) {
	key, err := otp.NewKeyFromURL(TOTPProvisioningURI(account, secret))
	if err != nil {
		return "", err
	}

	img, err := key.Image(totpQRSize, totpQRSize)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
