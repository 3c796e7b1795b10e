// Package util provides small generic helpers shared by the engine packages
package util
