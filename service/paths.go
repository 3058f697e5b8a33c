// Package service keeps the execute-log, wait-message and archive entities
// in a store.Store.
package service

import "strings"

const (
	ExecuteLogPath      = "/execute_log/"
	WaitMessagePath     = "/wait_message/"
	WaitMessageLastPath = "/wait_message_last/"
	ArchivePathPrefix   = "/archive/"
)

func archivePath(tenant string) string {
	if tenant == "" {
		tenant = "default"
	}
	return ArchivePathPrefix + tenant + "/"
}

func waitMessageLastKey(conversationID, flowCode, flowVersion string) string {
	return strings.Join([]string{conversationID, flowCode, flowVersion}, "|")
}
