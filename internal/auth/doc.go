// Package auth provides the authorization engine for the inventory services.
//
// This package implements:
//   - JWT token validation (HMAC shared secret)
//   - Role-Based Access Control (RBAC) over a static permission table
//   - Route to resource/action resolution with deny-by-default
//   - Public route and internal service-to-service bypass rules
//
// Every request passes through Service.Authorize before reaching any
// business handler. The permission and route tables are built once at
// startup and are safe for concurrent reads without locking.
package auth
