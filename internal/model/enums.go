package model

type EntryRole string

const (
	EntryRoleUser       EntryRole = "user"
	EntryRoleServer     EntryRole = "server"
	EntryRoleDeployItem EntryRole = "deploy_item"
)
