package testing

// BatchUserIDs splits single userIDs slice into sender-receiver pairs where the sender
// is the first provided userID e.g. [0, 1, 2, 3] -> [[0,1], [0,2], [0,3]]
func BatchUserIDs(userIDs []int64) [][]int64 {
	batches := make([][]int64, 0, len(userIDs)-1)
	for i := 1; i < len(userIDs); i++ {
		batches = append(batches, []int64{userIDs[0], userIDs[i]})
	}

	return batches
}
