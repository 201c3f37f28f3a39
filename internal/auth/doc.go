// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package auth implements the MANAS360 authentication and session core.
//
// # Domain Types
//
// Domain types should be created with their constructors, which validate
// input before anything reaches a repository:
//   - NewUser - patient, therapist or admin account
//   - NewRefreshToken - one link in a refresh-token family
//   - NewOTPChallenge - a one-time passcode sent to a phone or email
//   - NewPasswordReset - an emailed reset token
//
// # Services
//
//   - Service - registration, password/OTP/MFA login, refresh rotation with
//     reuse detection, logout, access-token authentication, device sessions,
//     MFA enrollment
//   - PasswordResetService - forgot-password flow
//
// All service errors are samber/oops errors with a stable code. Repositories
// wrap missing rows as ErrNotFound.
package auth
