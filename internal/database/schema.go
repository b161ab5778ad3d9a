package database

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id VARCHAR(64) PRIMARY KEY,
    credits INT NOT NULL DEFAULT 0,
    total_generated INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS credit_transactions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    profile_id VARCHAR(64) NOT NULL,
    direction VARCHAR(8) NOT NULL,
    amount INT NOT NULL,
    reason VARCHAR(64),
    payment_intent_id VARCHAR(128),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_payment_intent (payment_intent_id),
    FOREIGN KEY (profile_id) REFERENCES profiles(id)
);
`
