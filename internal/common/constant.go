package common

// AuthorizationHeaderName carries the bearer access token on inbound requests.
const AuthorizationHeaderName = "Authorization"

// ContentTypeJSON is the content type of every sidecar document.
const ContentTypeJSON = "application/json"
