// Package models defines the core domain models for rollcall.
//
// # Models
//
//   - StaffMember: one entry of the roster, selected on the check-in form
//   - AttendanceRecord: one check-in with device location and time
//   - Admin: an account allowed into the admin dashboard
//
// Both StaffMember and AttendanceRecord live only in the key-path store under
// "staff/{id}" and "attendance/{id}". The ID field is the store-assigned key
// and is never written into the stored value itself.
//
// # Design Principles
//
//  1. Store-assigned identity: IDs come from the store's push keys
//  2. Snapshots, not references: AttendanceRecord.StaffName is copied at write time
//  3. JSON field names match the stored documents (camelCase)
package models
