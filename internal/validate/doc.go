// Package validate checks uploads against the supported input types and
// device-dependent size ceilings before a conversion is started.
package validate
