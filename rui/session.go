package rui

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// The initialize message replays opaque session args so the server can
// recognize a returning client. The args are a signed claim set; the client
// never inspects them.

func SignSessionArgs(secret []byte, claims map[string]string) (string, error) {
	mapClaims := gojwt.MapClaims{}
	for name, value := range claims {
		mapClaims[name] = value
	}
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, mapClaims)
	return token.SignedString(secret)
}

func VerifySessionArgs(secret []byte, args string) (map[string]string, error) {
	token, err := gojwt.Parse(
		args,
		func(token *gojwt.Token) (any, error) {
			return secret, nil
		},
		gojwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, err
	}
	claims := map[string]string{}
	for name, value := range token.Claims.(gojwt.MapClaims) {
		if text, ok := value.(string); ok {
			claims[name] = text
		}
	}
	return claims, nil
}
