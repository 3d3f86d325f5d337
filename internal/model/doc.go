// Package model defines shared data types used across the signal engine.
//
// Conventions:
//   - Prices: float64 won; quantized prices are always whole won on a legal tick
//   - Percentages: plain numbers (3.0 means 3%), never fractions
//   - Dates: time.Time truncated to the session date in Asia/Seoul
//   - IDs: string tickers (6-character KRX codes), uuid.UUID for positions and fills
package model
