// Package task drives one processing unit through its porting lifecycle:
// generate an artifact set, apply it to the workspace, validate it, and
// persist the outcome at every state change. Defects feed diagnostic
// feedback into the next generation attempt under a bounded budget;
// infrastructure failures retry under a separate budget without consuming
// attempts or producing feedback.
package task
