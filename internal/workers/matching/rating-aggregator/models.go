package ratingaggregator

// NoRating is shown instead of stars when a responder has no rating.
const NoRating = "нет"

const star = "⭐"
