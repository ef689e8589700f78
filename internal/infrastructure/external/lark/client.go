// Package lark delivers claim notifications as Lark IM messages.
package lark

import (
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// Config holds Lark client configuration
type Config struct {
	AppID     string
	AppSecret string
	// ReceiveIDType is how user IDs are interpreted: open_id, user_id or email
	ReceiveIDType string
	// RoleChats routes "role:<name>" recipients to a group chat ID
	RoleChats map[string]string
}

// NewSDKClient creates the Lark SDK client with token caching
func NewSDKClient(cfg Config) *lark.Client {
	return lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
}
