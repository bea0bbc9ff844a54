package redis

import "github.com/kailas-cloud/ragdex/internal/domain"

const vectorField = "__vector"

func metaKey(name string) string { return domain.KeyPrefix + "collection:" + name }

func indexName(name string) string { return domain.KeyPrefix + name + ":idx" }

func pointPrefix(name string) string { return domain.KeyPrefix + name + ":pt:" }

func pointKey(name, id string) string { return pointPrefix(name) + id }
